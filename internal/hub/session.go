package hub

import (
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/arcade-server/internal/lobby"
	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/store"
	"github.com/DoyleJ11/arcade-server/pkg/types"
)

type session struct {
	id     string
	out    chan []byte
	userID int64
	closed bool
}

type user struct {
	info     store.User
	stats    store.Stats
	sessions map[string]*session
}

type me struct {
	lobby.OnlineUser
	MutedUntil  int64 `json:"muted_until"`
	BannedUntil int64 `json:"banned_until"`
}

func (u *user) me() me {
	return me{
		OnlineUser:  lobby.Online(u.info, u.stats),
		MutedUntil:  u.info.MutedUntil,
		BannedUntil: u.info.BannedUntil,
	}
}

func (h *Hub) connect(m Connect) {
	s := &session{id: m.SessionID, out: m.Out}
	h.sessions[s.id] = s
	h.send(s, "hello_required", nil)
}

func (h *Hub) bind(m Bind) {
	s := h.sessions[m.SessionID]
	if s == nil || s.closed {
		return
	}
	if m.Err != nil {
		code := protocol.CodeBadToken
		if errors.Is(m.Err, ErrMissingToken) {
			code = protocol.CodeMissingToken
		}
		h.sendError(s, protocol.Error{Error: code})
		return
	}

	u := m.User
	u.MutedUntil = max(u.MutedUntil, h.mutes[u.ID])
	u.BannedUntil = max(u.BannedUntil, h.bans[u.ID])
	if u.BannedAt(h.now()) {
		h.sendError(s, protocol.Error{Error: protocol.CodeBanned, BannedUntil: u.BannedUntil})
		return
	}
	if s.userID != 0 && s.userID != u.ID {
		h.unbind(s)
	}

	entry, online := h.users[u.ID]
	if !online {
		entry = &user{stats: m.Stats, sessions: make(map[string]*session)}
		h.users[u.ID] = entry
	}
	entry.info = u
	entry.sessions[s.id] = s
	s.userID = u.ID

	h.log.Info("session bound", zap.String("session", s.id), zap.Int64("user", u.ID), zap.Bool("first", !online))
	h.send(s, "hello_ok", types.HelloOK{Me: entry.me(), Server: h.flags()})
	h.send(s, "presence", lobby.Presence{Online: h.onlineUsers()})
	h.send(s, "lobby_state", h.lobbyView())
	if !online {
		h.broadcast("presence", lobby.Presence{Online: h.onlineUsers()})
		h.lobby.MarkDirty()
	}
}

func (h *Hub) disconnect(id string) {
	s := h.sessions[id]
	if s == nil {
		return
	}
	delete(h.sessions, id)
	h.closeSession(s)
	if s.userID != 0 {
		h.unbind(s)
	}
}

// unbind detaches s from its user. The user's last session leaving takes
// them out of the queue and every room.
func (h *Hub) unbind(s *session) {
	uid := s.userID
	s.userID = 0
	u := h.users[uid]
	if u == nil {
		return
	}
	delete(u.sessions, s.id)
	if len(u.sessions) > 0 {
		return
	}

	h.applyQueue(uid, h.mm.RemoveUser(uid))
	for _, r := range h.roomsOf(uid) {
		h.leaveRoom(uid, r)
	}
	delete(h.users, uid)
	h.log.Info("user offline", zap.Int64("user", uid))
	h.broadcast("presence", lobby.Presence{Online: h.onlineUsers()})
	h.lobby.MarkDirty()
}

func (h *Hub) closeSession(s *session) {
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// drop closes s now and defers its teardown to reap, so callers iterating
// over sessions or members are not disturbed.
func (h *Hub) drop(s *session) {
	if s.closed {
		return
	}
	h.closeSession(s)
	h.dropped = append(h.dropped, s.id)
}

func (h *Hub) reap() {
	for len(h.dropped) > 0 {
		ids := h.dropped
		h.dropped = nil
		for _, id := range ids {
			h.disconnect(id)
		}
	}
}

func (h *Hub) encode(typ string, body any) []byte {
	frame, err := protocol.Encode(typ, body)
	if err != nil {
		h.log.Error("encode frame", zap.String("type", typ), zap.Error(err))
		return nil
	}
	return frame
}

func (h *Hub) sendFrame(s *session, frame []byte) {
	if frame == nil || s.closed {
		return
	}
	select {
	case s.out <- frame:
	default:
		h.log.Warn("outbox full, dropping session", zap.String("session", s.id), zap.Int64("user", s.userID))
		h.drop(s)
	}
}

func (h *Hub) send(s *session, typ string, body any) {
	h.sendFrame(s, h.encode(typ, body))
}

func (h *Hub) sendError(s *session, e protocol.Error) {
	h.send(s, "error", e)
}

func (h *Hub) sendUserFrame(uid int64, frame []byte) {
	u := h.users[uid]
	if u == nil {
		return
	}
	for _, s := range u.sessions {
		h.sendFrame(s, frame)
	}
}

func (h *Hub) sendUser(uid int64, typ string, body any) {
	h.sendUserFrame(uid, h.encode(typ, body))
}

// broadcast reaches every bound session.
func (h *Hub) broadcast(typ string, body any) {
	frame := h.encode(typ, body)
	for _, u := range h.users {
		for _, s := range u.sessions {
			h.sendFrame(s, frame)
		}
	}
}

func (h *Hub) flags() types.ServerFlags {
	return types.ServerFlags{BossEnabled: h.bossEnabled}
}

func (h *Hub) onlineUsers() []lobby.OnlineUser {
	out := make([]lobby.OnlineUser, 0, len(h.users))
	for _, u := range h.users {
		out = append(out, lobby.Online(u.info, u.stats))
	}
	return lobby.Build(nil, out, nil, types.ServerFlags{}).Online
}

func (h *Hub) lobbyView() lobby.View {
	return lobby.Build(h.roomInfos(), h.onlineUsers(), h.mm.Sizes(), h.flags())
}

func (h *Hub) broadcastLobby() {
	h.broadcast("lobby_state", h.lobbyView())
}
