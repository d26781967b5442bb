package hub

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arcade-server/internal/store"
	"github.com/DoyleJ11/arcade-server/pkg/types"
)

type AdminOp string

const (
	OpMute       AdminOp = "mute"
	OpBan        AdminOp = "ban"
	OpKick       AdminOp = "kick"
	OpAnnounce   AdminOp = "announce"
	OpForceStart AdminOp = "force_start"
	OpForceEnd   AdminOp = "force_end"
	OpSetBoss    AdminOp = "set_boss"
)

const (
	defaultMuteMinutes = 5
	defaultBanMinutes  = 10
	maxAnnounceRunes   = 500
)

// AdminCommand is one moderation or control operation. Only the fields the
// op reads need to be set.
type AdminCommand struct {
	Op      AdminOp
	UserID  int64
	Minutes int
	Text    string
	RoomKey string
	Enabled bool
}

type AdminResult = types.AdminResult

func (h *Hub) admin(cmd AdminCommand) AdminResult {
	res := AdminResult{Op: string(cmd.Op), OK: true}
	fail := func(code string) AdminResult {
		res.OK = false
		res.Error = code
		return res
	}

	switch cmd.Op {
	case OpMute:
		if cmd.UserID == 0 {
			return fail("missing_user")
		}
		until := h.until(cmd.Minutes, defaultMuteMinutes)
		h.mutes[cmd.UserID] = until
		if u := h.users[cmd.UserID]; u != nil {
			u.info.MutedUntil = until
		}
		h.jobs.Submit(store.SetMute{UserID: cmd.UserID, Until: until})
		h.sendUser(cmd.UserID, "moderation", types.Moderation{Kind: "mute", UntilTS: until})
		res.Until = until
	case OpBan:
		if cmd.UserID == 0 {
			return fail("missing_user")
		}
		until := h.until(cmd.Minutes, defaultBanMinutes)
		h.bans[cmd.UserID] = until
		h.jobs.Submit(store.SetBan{UserID: cmd.UserID, Until: until})
		h.sendUser(cmd.UserID, "moderation", types.Moderation{Kind: "ban", UntilTS: until})
		h.kick(cmd.UserID, "banned")
		res.Until = until
	case OpKick:
		if !h.kick(cmd.UserID, "kicked") {
			return fail("user_offline")
		}
	case OpAnnounce:
		text := truncate(strings.TrimSpace(cmd.Text), maxAnnounceRunes)
		if text == "" {
			return fail("empty_text")
		}
		h.broadcast("announcement", types.Announcement{
			ID:        uuid.NewString(),
			Text:      text,
			CreatedAt: h.now().Unix(),
		})
	case OpForceStart:
		r := h.rooms[cmd.RoomKey]
		if r == nil {
			return fail("room_not_found")
		}
		var ok bool
		h.guard(r, func() { ok = r.ForceStart() })
		h.flush(r)
		if !ok {
			return fail("cannot_start")
		}
		h.lobby.MarkDirty()
	case OpForceEnd:
		r := h.rooms[cmd.RoomKey]
		if r == nil {
			return fail("room_not_found")
		}
		var ok bool
		h.guard(r, func() { ok = r.ForceEnd("admin_end") })
		h.flush(r)
		if !ok {
			return fail("not_running")
		}
		h.lobby.MarkDirty()
	case OpSetBoss:
		h.bossEnabled = cmd.Enabled
		h.broadcast("server_flag", h.flags())
		h.lobby.MarkDirty()
	default:
		return fail("unknown_op")
	}
	h.log.Info("admin op applied", zap.String("op", string(cmd.Op)), zap.Int64("user", cmd.UserID), zap.String("room", cmd.RoomKey))
	return res
}

func (h *Hub) until(minutes, fallback int) int64 {
	if minutes <= 0 {
		minutes = fallback
	}
	return h.now().Add(time.Duration(minutes) * time.Minute).Unix()
}

// kick notifies and drops every session of uid. It reports false when the
// user has none.
func (h *Hub) kick(uid int64, reason string) bool {
	u := h.users[uid]
	if u == nil {
		return false
	}
	h.sendUser(uid, "kicked", types.Kicked{Reason: reason})
	for _, s := range u.sessions {
		h.drop(s)
	}
	return true
}
