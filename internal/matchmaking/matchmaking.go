// Package matchmaking holds FIFO queues keyed by (kind, mode) and forms
// matches when a queue reaches its required size. It is not safe for
// concurrent use; the hub goroutine owns it.
package matchmaking

import (
	"errors"
	"slices"
	"sort"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
)

var ErrUnsupportedQueue = errors.New("unsupported queue")

type Key struct {
	Kind string `json:"kind"`
	Mode string `json:"mode"`
}

func (k Key) String() string { return k.Kind + ":" + k.Mode }

var rules = map[Key]int{
	{"arena", "duel"}:   2,
	{"arena", "teams"}:  4,
	{"arena", "ffa"}:    4,
	{"arena", "boss"}:   2,
	{"typing", "1v1"}:   2,
	{"pong", "1v1"}:     2,
	{"reaction", "1v1"}: 2,
	{"chess", "1v1"}:    2,
}

var defaultModes = map[string]string{
	"arena":    "duel",
	"typing":   "1v1",
	"pong":     "1v1",
	"reaction": "1v1",
	"chess":    "1v1",
}

// Normalize folds kind and mode and resolves an empty or "default" mode to
// the kind's canonical one.
func Normalize(kind, mode string) Key {
	k := Key{Kind: protocol.Fold(kind), Mode: protocol.Fold(mode)}
	if k.Mode == "" || k.Mode == "default" {
		if m, ok := defaultModes[k.Kind]; ok {
			k.Mode = m
		}
	}
	return k
}

// PlayersNeeded reports the match size for key, or false when the pair is
// not queueable.
func PlayersNeeded(key Key) (int, bool) {
	n, ok := rules[key]
	return n, ok
}

// Status is one user's view of a queue. An inactive status tells the user
// they are no longer queued under Key.
type Status struct {
	UserID   int64  `json:"-"`
	Kind     string `json:"kind"`
	Mode     string `json:"mode"`
	Position *int   `json:"position"`
	Size     int    `json:"size"`
	Active   bool   `json:"active"`
}

type Match struct {
	Kind    string
	Mode    string
	UserIDs []int64
}

type Result struct {
	Key     Key
	Left    *Key
	Updates []Status
	Matches []Match
}

type QueueSize struct {
	Kind string `json:"kind"`
	Mode string `json:"mode"`
	Size int    `json:"size"`
}

type Matchmaker struct {
	queues map[Key][]int64
	byUser map[int64]Key
}

func New() *Matchmaker {
	return &Matchmaker{
		queues: make(map[Key][]int64),
		byUser: make(map[int64]Key),
	}
}

// Join queues uid under (kind, mode), leaving any other queue first.
// Re-joining the same queue keeps the user's place. Every time the queue
// holds enough users the earliest ones are popped as a match.
func (m *Matchmaker) Join(uid int64, kind, mode string) (Result, error) {
	key := Normalize(kind, mode)
	need, ok := rules[key]
	if !ok {
		return Result{Key: key}, ErrUnsupportedQueue
	}

	res := Result{Key: key}
	changed := map[Key]bool{key: true}

	if cur, queued := m.byUser[uid]; queued {
		if cur == key {
			res.Updates = m.statuses(changed)
			return res, nil
		}
		m.remove(uid, cur)
		left := cur
		res.Left = &left
		changed[cur] = true
	}

	m.queues[key] = append(m.queues[key], uid)
	m.byUser[uid] = key

	for len(m.queues[key]) >= need {
		q := m.queues[key]
		ids := slices.Clone(q[:need])
		m.queues[key] = q[need:]
		for _, id := range ids {
			delete(m.byUser, id)
		}
		res.Matches = append(res.Matches, Match{Kind: key.Kind, Mode: key.Mode, UserIDs: ids})
	}
	if len(m.queues[key]) == 0 {
		delete(m.queues, key)
	}

	res.Updates = m.statuses(changed)
	return res, nil
}

// Leave removes uid from its queue. A non-empty kind or mode must match the
// queue the user is in, otherwise nothing happens.
func (m *Matchmaker) Leave(uid int64, kind, mode string) Result {
	cur, ok := m.byUser[uid]
	if !ok {
		return Result{}
	}
	if kind != "" || mode != "" {
		if kind == "" {
			kind = cur.Kind
		}
		if mode == "" {
			mode = cur.Mode
		}
		if Normalize(kind, mode) != cur {
			return Result{}
		}
	}
	m.remove(uid, cur)
	return Result{Key: cur, Left: &cur, Updates: m.statuses(map[Key]bool{cur: true})}
}

// RemoveUser drops uid from whatever queue it occupies.
func (m *Matchmaker) RemoveUser(uid int64) Result {
	return m.Leave(uid, "", "")
}

func (m *Matchmaker) QueueOf(uid int64) (Key, bool) {
	k, ok := m.byUser[uid]
	return k, ok
}

func (m *Matchmaker) Position(uid int64) int {
	k, ok := m.byUser[uid]
	if !ok {
		return 0
	}
	return slices.Index(m.queues[k], uid) + 1
}

func (m *Matchmaker) Sizes() []QueueSize {
	out := make([]QueueSize, 0, len(m.queues))
	for k, q := range m.queues {
		if len(q) > 0 {
			out = append(out, QueueSize{Kind: k.Kind, Mode: k.Mode, Size: len(q)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Mode < out[j].Mode
	})
	return out
}

// LeftStatus is the inactive status sent to a user who left key.
func LeftStatus(uid int64, key Key) Status {
	return Status{UserID: uid, Kind: key.Kind, Mode: key.Mode}
}

func (m *Matchmaker) remove(uid int64, key Key) {
	delete(m.byUser, uid)
	q := m.queues[key]
	if i := slices.Index(q, uid); i >= 0 {
		q = slices.Delete(q, i, i+1)
	}
	if len(q) == 0 {
		delete(m.queues, key)
		return
	}
	m.queues[key] = q
}

// statuses recomputes positions for every member of the given queues.
func (m *Matchmaker) statuses(keys map[Key]bool) []Status {
	sorted := make([]Key, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	var out []Status
	for _, k := range sorted {
		q := m.queues[k]
		for i, uid := range q {
			pos := i + 1
			out = append(out, Status{UserID: uid, Kind: k.Kind, Mode: k.Mode, Position: &pos, Size: len(q), Active: true})
		}
	}
	return out
}
