package hub

import (
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/arcade-server/internal/matchmaking"
	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
	"github.com/DoyleJ11/arcade-server/pkg/types"
)

func roomKey(r room.Room) string { return protocol.RoomKey(string(r.Kind()), r.ID()) }

// step is one scheduler iteration. The lobby broadcast goes first so it
// shows the world as of the start of the iteration.
func (h *Hub) step(dt float64) {
	if dt <= 0 {
		dt = 1 / float64(h.cfg.TickRate)
	}
	dt = min(dt, h.cfg.MaxDT)

	if h.lobby.Due(dt) {
		h.broadcastLobby()
	}
	for _, key := range h.roomKeys() {
		r := h.rooms[key]
		h.guard(r, func() { r.Tick(dt) })
		h.flush(r)
	}
	h.collect()
	h.reap()
}

// guard runs fn against r, containing any panic to that room.
func (h *Hub) guard(r room.Room, fn func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			key := roomKey(r)
			h.log.Error("room fault", zap.String("room", key), zap.Any("panic", p), zap.Stack("stack"))
			h.toMembers(r, "room_error", types.RoomRef{RoomKey: key})
			ok = false
		}
	}()
	fn()
	return true
}

// flush delivers r's queued events in order.
func (h *Hub) flush(r room.Room) {
	var events []room.Event
	if !h.guard(r, func() { events = r.DrainEvents() }) {
		return
	}
	for _, ev := range events {
		if ev.Lobby {
			h.lobby.MarkDirty()
		}
		frame := h.encode(ev.Type, ev.Body)
		if ev.To != 0 {
			h.sendUserFrame(ev.To, frame)
			continue
		}
		for _, uid := range h.members(r) {
			h.sendUserFrame(uid, frame)
		}
	}
}

func (h *Hub) toMembers(r room.Room, typ string, body any) {
	frame := h.encode(typ, body)
	for _, uid := range h.members(r) {
		h.sendUserFrame(uid, frame)
	}
}

func (h *Hub) members(r room.Room) []int64 {
	uids, _ := h.tryMembers(r)
	return uids
}

// tryMembers reports a panicking Members as ok == false. It cannot use guard,
// which calls back into Members to send room_error.
func (h *Hub) tryMembers(r room.Room) (uids []int64, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Error("room fault", zap.String("room", roomKey(r)), zap.Any("panic", p), zap.Stack("stack"))
			uids, ok = nil, false
		}
	}()
	return r.Members(), true
}

// collect tears down rooms nobody is in, and rooms that can no longer say
// who is in them. Their pending events are discarded.
func (h *Hub) collect() {
	for key, r := range h.rooms {
		uids, ok := h.tryMembers(r)
		if ok && len(uids) > 0 {
			continue
		}
		delete(h.rooms, key)
		h.lobby.MarkDirty()
		h.log.Debug("room closed", zap.String("room", key), zap.Bool("faulted", !ok))
	}
}

func (h *Hub) roomKeys() []string {
	keys := make([]string, 0, len(h.rooms))
	for k := range h.rooms {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (h *Hub) roomsOf(uid int64) []room.Room {
	var out []room.Room
	for _, key := range h.roomKeys() {
		if r := h.rooms[key]; r.HasMember(uid) {
			out = append(out, r)
		}
	}
	return out
}

func (h *Hub) roomInfos() []room.Info {
	out := make([]room.Info, 0, len(h.rooms))
	for _, key := range h.roomKeys() {
		r := h.rooms[key]
		var info room.Info
		if h.guard(r, func() { info = r.Info() }) {
			out = append(out, info)
		}
	}
	return out
}

// ensureRoom returns the room at (kind, id), creating it with p if absent.
func (h *Hub) ensureRoom(kind room.Kind, id string, p room.Params) (room.Room, error) {
	key := protocol.RoomKey(string(kind), id)
	if r, ok := h.rooms[key]; ok {
		return r, nil
	}
	if kind == room.KindArena && protocol.Fold(p.Mode) == "boss" && !h.bossEnabled {
		p.Mode = "ffa"
	}
	p.Recorder = room.RecorderFunc(h.recordResult)
	r, err := h.registry.New(kind, id, p)
	if err != nil {
		return nil, err
	}
	h.rooms[key] = r
	h.lobby.MarkDirty()
	h.log.Info("room created", zap.String("room", key), zap.String("mode", p.Mode))
	return r, nil
}

func (h *Hub) joinRoom(uid int64, r room.Room) {
	u := h.users[uid]
	if u == nil {
		return
	}
	var res room.JoinResult
	if !h.guard(r, func() { res = r.Join(u.info.Identity()) }) {
		return
	}
	h.sendUser(uid, "room_joined", types.RoomJoined{
		RoomKey:  roomKey(r),
		RoomID:   r.ID(),
		Kind:     string(r.Kind()),
		Role:     string(res.Role),
		Seat:     res.Seat,
		State:    string(res.State),
		ModeName: res.ModeName,
	})
	var snap room.Event
	if h.guard(r, func() { snap = r.Snapshot() }) {
		h.sendUser(uid, snap.Type, snap.Body)
	}
	h.flush(r)
	h.lobby.MarkDirty()
}

func (h *Hub) leaveRoom(uid int64, r room.Room) {
	h.guard(r, func() { r.Leave(uid) })
	h.sendUser(uid, "room_left", types.RoomRef{RoomKey: roomKey(r)})
	h.flush(r)
	h.lobby.MarkDirty()
}

// startMatch opens a fresh room for a formed match and moves every matched
// user into it, out of whatever rooms they were in.
func (h *Hub) startMatch(m matchmaking.Match) {
	kind := room.Kind(m.Kind)
	id := protocol.NewRoomID()
	for h.rooms[protocol.RoomKey(m.Kind, id)] != nil {
		id = protocol.NewRoomID()
	}
	r, err := h.ensureRoom(kind, id, room.Params{Mode: m.Mode})
	if err != nil {
		h.log.Error("create match room", zap.String("kind", m.Kind), zap.Error(err))
		return
	}
	h.log.Info("match formed", zap.String("room", roomKey(r)), zap.Int64s("players", m.UserIDs))

	key := matchmaking.Key{Kind: m.Kind, Mode: m.Mode}
	for _, uid := range m.UserIDs {
		h.sendUser(uid, "queue_status", matchmaking.LeftStatus(uid, key))
		for _, cur := range h.roomsOf(uid) {
			h.leaveRoom(uid, cur)
		}
		h.sendUser(uid, "match_found", types.MatchFound{
			Kind:    m.Kind,
			Mode:    m.Mode,
			RoomID:  id,
			RoomKey: roomKey(r),
			Players: m.UserIDs,
		})
		h.joinRoom(uid, r)
	}
}

// applyQueue sends the statuses a matchmaker call produced.
func (h *Hub) applyQueue(uid int64, res matchmaking.Result) {
	if res.Left != nil {
		h.sendUser(uid, "queue_status", matchmaking.LeftStatus(uid, *res.Left))
	}
	for _, st := range res.Updates {
		h.sendUser(st.UserID, "queue_status", st)
	}
	if res.Left != nil || len(res.Updates) > 0 || len(res.Matches) > 0 {
		h.lobby.MarkDirty()
	}
}

// recordResult runs on the hub goroutine, inside a room's tick or handler.
func (h *Hub) recordResult(uid int64, res room.Result) {
	if u := h.users[uid]; u != nil {
		u.stats = u.stats.Apply(res)
	}
	h.jobs.Submit(store.RecordResult{UserID: uid, Result: res})
}
