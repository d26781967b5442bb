package hub

import (
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/DoyleJ11/arcade-server/internal/matchmaking"
	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/pkg/types"
)

const maxChatRunes = 400

// route dispatches one frame from a bound session.
func (h *Hub) route(s *session, env protocol.Envelope) {
	uid := s.userID
	switch env.Type {
	case "hello":
		// Already bound; a second hello is harmless.
	case "ping":
		h.send(s, "pong", types.Pong{TS: h.now().UnixMilli()})
	case "get_lobby":
		h.send(s, "lobby_state", h.lobbyView())
	case "queue_join":
		h.queueJoin(s, env)
	case "queue_leave":
		var req types.QueueRequest
		if h.decode(s, env, &req) {
			h.applyQueue(uid, h.mm.Leave(uid, req.Kind, req.Mode))
		}
	case "join_room", "room_join":
		h.joinRequest(s, env)
	case "leave_room", "room_leave":
		h.leaveRequest(s, env)
	case "room_chat":
		h.chat(s, env)
	case "admin_mute", "admin_ban", "admin_kick", "admin_announce",
		"admin_force_start", "admin_force_end", "set_boss_enabled":
		h.adminFrame(s, env)
	default:
		if kind, _, ok := strings.Cut(env.Type, "_"); ok && h.registry.Has(room.Kind(kind)) {
			h.forward(s, room.Kind(kind), env)
			return
		}
		h.sendError(s, protocol.Error{Error: protocol.CodeUnknownMessageType, Got: env.Type})
	}
}

func (h *Hub) decode(s *session, env protocol.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		h.sendError(s, protocol.Error{Error: protocol.CodeBadJSON, Got: env.Type})
		return false
	}
	return true
}

func (h *Hub) queueJoin(s *session, env protocol.Envelope) {
	var req types.QueueRequest
	if !h.decode(s, env, &req) {
		return
	}
	key := matchmaking.Normalize(req.Kind, req.Mode)
	if key.Kind == string(room.KindArena) && key.Mode == "boss" && !h.bossEnabled {
		h.sendError(s, protocol.Error{Error: protocol.CodeBossDisabled})
		return
	}
	res, err := h.mm.Join(s.userID, req.Kind, req.Mode)
	if errors.Is(err, matchmaking.ErrUnsupportedQueue) {
		h.sendError(s, protocol.Error{Error: protocol.CodeUnsupportedQueue, Got: key.String()})
		return
	}
	h.applyQueue(s.userID, res)
	for _, m := range res.Matches {
		h.startMatch(m)
	}
}

func (h *Hub) joinRequest(s *session, env protocol.Envelope) {
	var req types.JoinRoom
	if !h.decode(s, env, &req) {
		return
	}
	kind := room.Kind(protocol.Fold(req.Kind))
	if kind == "" {
		kind = room.KindArena
	}
	if !h.registry.Has(kind) {
		h.sendError(s, protocol.Error{Error: protocol.CodeUnknownRoomKind, Got: string(kind)})
		return
	}
	h.applyQueue(s.userID, h.mm.RemoveUser(s.userID))

	r, err := h.ensureRoom(kind, protocol.SanitizeRoomID(req.RoomID), room.Params{
		Mode:         req.Mode,
		MatchSeconds: req.MatchSeconds,
	})
	if err != nil {
		h.log.Error("create room", zap.String("kind", string(kind)), zap.Error(err))
		h.sendError(s, protocol.Error{Error: protocol.CodeUnknownRoomKind, Got: string(kind)})
		return
	}
	h.joinRoom(s.userID, r)
}

func (h *Hub) leaveRequest(s *session, env protocol.Envelope) {
	var req types.LeaveRoom
	if !h.decode(s, env, &req) {
		return
	}
	key := req.RoomKey
	if key == "" && req.Kind != "" && req.RoomID != "" {
		key = protocol.RoomKey(protocol.Fold(req.Kind), protocol.Fold(req.RoomID))
	}
	r := h.rooms[key]
	if r == nil || !r.HasMember(s.userID) {
		h.sendError(s, protocol.Error{Error: protocol.CodeNotInRoom})
		return
	}
	h.leaveRoom(s.userID, r)
}

func (h *Hub) chat(s *session, env protocol.Envelope) {
	var req types.ChatRequest
	if !h.decode(s, env, &req) {
		return
	}
	u := h.users[s.userID]
	if u.info.MutedAt(h.now()) {
		h.sendError(s, protocol.Error{Error: protocol.CodeMuted, MutedUntil: u.info.MutedUntil})
		return
	}
	r := h.rooms[req.RoomKey]
	if r == nil || !r.HasMember(s.userID) {
		h.sendError(s, protocol.Error{Error: protocol.CodeNotInRoom})
		return
	}
	text := truncate(strings.TrimSpace(req.Text), maxChatRunes)
	if text == "" {
		return
	}
	h.toMembers(r, "room_chat", types.ChatMessage{
		RoomKey:   req.RoomKey,
		FromID:    s.userID,
		FromName:  u.info.Identity().Name(),
		Text:      text,
		CreatedAt: h.now().Unix(),
	})
}

// forward hands a room-scoped message to every room of kind the user is in.
func (h *Hub) forward(s *session, kind room.Kind, env protocol.Envelope) {
	var hit bool
	for _, r := range h.roomsOf(s.userID) {
		if r.Kind() != kind {
			continue
		}
		hit = true
		h.guard(r, func() { r.Handle(s.userID, env) })
		h.flush(r)
	}
	if !hit {
		h.sendError(s, protocol.Error{Error: protocol.CodeNotInRoom, Got: env.Type})
	}
}

func (h *Hub) adminFrame(s *session, env protocol.Envelope) {
	if !h.users[s.userID].info.IsAdmin {
		h.sendError(s, protocol.Error{Error: protocol.CodeAdminOnly})
		return
	}
	var cmd AdminCommand
	switch env.Type {
	case "admin_mute", "admin_ban", "admin_kick":
		var req types.ModerationRequest
		if !h.decode(s, env, &req) {
			return
		}
		cmd = AdminCommand{Op: AdminOp(strings.TrimPrefix(env.Type, "admin_")), UserID: req.UserID, Minutes: req.Minutes}
	case "admin_announce":
		var req types.AnnounceRequest
		if !h.decode(s, env, &req) {
			return
		}
		cmd = AdminCommand{Op: OpAnnounce, Text: req.Text}
	case "admin_force_start", "admin_force_end":
		var req types.RoomRequest
		if !h.decode(s, env, &req) {
			return
		}
		cmd = AdminCommand{Op: AdminOp(strings.TrimPrefix(env.Type, "admin_")), RoomKey: req.RoomKey}
	case "set_boss_enabled":
		var req types.BossToggle
		if !h.decode(s, env, &req) {
			return
		}
		cmd = AdminCommand{Op: OpSetBoss, Enabled: req.Enabled}
	}
	h.log.Info("admin command", zap.Int64("admin", s.userID), zap.String("op", string(cmd.Op)))
	h.send(s, "admin_result", h.admin(cmd))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
