// Package typing is a best-of-three race to type a shown phrase exactly.
package typing

import (
	"maps"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
)

const (
	BestOf       = 3
	RoundTimeout = 18.0

	snapshotInterval = 0.2
)

var Phrases = []string{
	"resume bullets not paragraphs",
	"practice interview eye contact",
	"career fair speedrun any percent",
	"brainstorm first then draft",
	"lock in and cite sources",
	"sigma cover letter but polite",
	"cortisol stable submit early",
}

type Room struct {
	id       string
	rng      *rand.Rand
	recorder room.ResultRecorder
	roster   room.Roster
	out      room.Outbox

	state     room.State
	round     int
	score     map[int64]int
	phrase    string
	open      bool
	timeout   float64
	snapAccum float64
}

var _ room.Room = (*Room)(nil)

func New(id string, p room.Params, rng *rand.Rand) *Room {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r := &Room{id: id, rng: rng, recorder: p.Recorder, roster: room.NewRoster(2)}
	if r.recorder == nil {
		r.recorder = room.RecorderFunc(func(int64, room.Result) {})
	}
	r.reset()
	return r
}

func Factory(id string, p room.Params) room.Room { return New(id, p, nil) }

func (r *Room) reset() {
	r.state = room.StateWaiting
	r.round = 0
	r.phrase = ""
	r.open = false
	r.timeout = RoundTimeout
	r.snapAccum = 0
	r.score = make(map[int64]int)
	for _, uid := range r.roster.Players() {
		r.score[uid] = 0
	}
}

func (r *Room) Kind() room.Kind           { return room.KindTyping }
func (r *Room) ID() string                { return r.id }
func (r *Room) State() room.State         { return r.state }
func (r *Room) Round() int                { return r.round }
func (r *Room) Phrase() string            { return r.phrase }
func (r *Room) Score(uid int64) int       { return r.score[uid] }
func (r *Room) Members() []int64          { return r.roster.Members() }
func (r *Room) HasMember(uid int64) bool  { return r.roster.HasMember(uid) }
func (r *Room) DrainEvents() []room.Event { return r.out.Drain() }
func (r *Room) ForceStart() bool          { return false }

func (r *Room) Join(u room.Identity) room.JoinResult {
	role := r.roster.Add(u.ID)
	if _, ok := r.score[u.ID]; !ok && role == room.RolePlayer {
		r.score[u.ID] = 0
	}
	r.maybeStart()
	r.emitRoster()
	return room.JoinResult{Role: role, State: r.state}
}

func (r *Room) maybeStart() {
	if r.roster.PlayerCount() == 2 && r.state == room.StateWaiting {
		r.state = room.StateRunning
		r.startRound()
	}
}

func (r *Room) Leave(uid int64) {
	if r.roster.Remove(uid) && r.state == room.StateRunning {
		r.finish("player_left")
	}
	r.emitRoster()
}

type submitBody struct {
	Text string `json:"text"`
}

func (r *Room) Handle(uid int64, msg protocol.Envelope) {
	switch msg.Type {
	case "typing_submit":
		var body submitBody
		if msg.Decode(&body) != nil || !r.open || r.state != room.StateRunning || !r.roster.IsPlayer(uid) {
			return
		}
		if strings.TrimSpace(body.Text) != r.phrase {
			r.out.Emit(room.Event{Type: "typing_incorrect", To: uid, Body: pointBody{RoomID: r.id, UserID: uid}})
			return
		}
		r.open = false
		r.score[uid]++
		r.out.Emit(room.Event{Type: "typing_round_win", Body: pointBody{RoomID: r.id, UserID: uid, Score: maps.Clone(r.score)}})
		r.finishOrNext()
	case "typing_restart":
		if r.state != room.StateEnded {
			return
		}
		r.reset()
		r.maybeStart()
		r.emitRoster()
	default:
		r.out.Emit(room.Event{Type: "error", To: uid, Body: protocol.Error{Error: protocol.CodeUnknownMessageType, Got: msg.Type}})
	}
}

func (r *Room) startRound() {
	r.round++
	r.phrase = Phrases[r.rng.IntN(len(Phrases))]
	r.open = true
	r.timeout = RoundTimeout
	r.out.Emit(room.Event{Type: "typing_round", Body: roundBody{RoomID: r.id, Round: r.round, Phrase: r.phrase}})
}

func (r *Room) finishOrNext() {
	need := BestOf/2 + 1
	for _, pts := range r.score {
		if pts >= need {
			r.finish("score")
			return
		}
	}
	if r.round >= BestOf {
		r.finish("round_limit")
		return
	}
	r.startRound()
}

func (r *Room) Tick(dt float64) {
	if r.state != room.StateRunning || !r.open {
		return
	}
	r.snapAccum += dt
	r.timeout -= dt
	if r.timeout <= 0 {
		r.open = false
		r.out.Emit(room.Event{Type: "typing_round_timeout", Body: roundBody{RoomID: r.id, Round: r.round}})
		if r.round >= BestOf {
			r.finish("time")
		} else {
			r.startRound()
		}
	}
	if r.snapAccum >= snapshotInterval {
		r.snapAccum = 0
		r.out.Emit(r.Snapshot())
	}
}

func (r *Room) ForceEnd(reason string) bool {
	if r.state != room.StateRunning {
		return false
	}
	r.finish(reason)
	return true
}

func (r *Room) finish(reason string) {
	if r.state == room.StateEnded {
		return
	}
	r.state = room.StateEnded
	r.open = false
	if players := r.roster.Players(); len(players) == 2 {
		a, b := players[0], players[1]
		if r.score[a] != r.score[b] {
			winner, loser := a, b
			if r.score[b] > r.score[a] {
				winner, loser = b, a
			}
			r.recorder.RecordResult(winner, room.Result{Win: true})
			r.recorder.RecordResult(loser, room.Result{Win: false})
		}
	}
	r.out.Emit(room.Event{
		Type:  "typing_end",
		Body:  endBody{RoomID: r.id, Reason: reason, Score: maps.Clone(r.score)},
		Lobby: true,
	})
}

type roundBody struct {
	RoomID string `json:"room_id"`
	Round  int    `json:"round"`
	Phrase string `json:"phrase,omitempty"`
}

type pointBody struct {
	RoomID string        `json:"room_id"`
	UserID int64         `json:"user_id"`
	Score  map[int64]int `json:"score,omitempty"`
}

type endBody struct {
	RoomID string        `json:"room_id"`
	Reason string        `json:"reason"`
	Score  map[int64]int `json:"score"`
}

type stateBody struct {
	RoomID    string        `json:"room_id"`
	State     room.State    `json:"state"`
	Round     int           `json:"round"`
	Players   []int64       `json:"players"`
	Score     map[int64]int `json:"score"`
	RoundOpen bool          `json:"round_open"`
	Timeout   float64       `json:"timeout"`
	Phrase    string        `json:"phrase"`
}

type rosterBody struct {
	RoomID     string  `json:"room_id"`
	Players    []int64 `json:"players"`
	Spectators []int64 `json:"spectators"`
}

func (r *Room) Snapshot() room.Event {
	return room.Event{Type: "typing_state", Body: stateBody{
		RoomID:    r.id,
		State:     r.state,
		Round:     r.round,
		Players:   r.roster.Players(),
		Score:     maps.Clone(r.score),
		RoundOpen: r.open,
		Timeout:   math.Round(max(r.timeout, 0)*100) / 100,
		Phrase:    r.phrase,
	}}
}

func (r *Room) emitRoster() {
	r.out.Emit(room.Event{
		Type:  "typing_roster",
		Body:  rosterBody{RoomID: r.id, Players: r.roster.Players(), Spectators: r.roster.Spectators()},
		Lobby: true,
	})
}

func (r *Room) Info() room.Info {
	players := r.roster.Players()
	return room.Info{
		Key:            protocol.RoomKey(string(room.KindTyping), r.id),
		ID:             r.id,
		Kind:           room.KindTyping,
		State:          r.state,
		Players:        players,
		PlayerCount:    len(players),
		SpectatorCount: len(r.roster.Spectators()),
	}
}
