// Package lobby builds the aggregated lobby view and decides when the hub
// should broadcast it.
package lobby

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/DoyleJ11/arcade-server/internal/matchmaking"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
	"github.com/DoyleJ11/arcade-server/pkg/types"
)

// OnlineUser is one entry of the presence roster.
type OnlineUser struct {
	ID          int64       `json:"id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name"`
	IsAdmin     bool        `json:"is_admin"`
	Stats       store.Stats `json:"stats"`
}

func Online(u store.User, st store.Stats) OnlineUser {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	return OnlineUser{ID: u.ID, Username: u.Username, DisplayName: name, IsAdmin: u.IsAdmin, Stats: st}
}

type View struct {
	Rooms  []room.Info             `json:"rooms"`
	Online []OnlineUser            `json:"online"`
	Server types.ServerFlags       `json:"server"`
	Queues []matchmaking.QueueSize `json:"queues"`
}

// Build sorts rooms by kind then id and presence by username so repeated
// broadcasts of an unchanged lobby are byte-identical.
func Build(rooms []room.Info, online []OnlineUser, queues []matchmaking.QueueSize, flags types.ServerFlags) View {
	rooms = slices.Clone(rooms)
	slices.SortFunc(rooms, func(a, b room.Info) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	online = slices.Clone(online)
	slices.SortFunc(online, func(a, b OnlineUser) int {
		if c := strings.Compare(a.Username, b.Username); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if rooms == nil {
		rooms = []room.Info{}
	}
	if online == nil {
		online = []OnlineUser{}
	}
	if queues == nil {
		queues = []matchmaking.QueueSize{}
	}
	return View{Rooms: rooms, Online: online, Server: flags, Queues: queues}
}

// Presence is the payload of a presence broadcast.
type Presence struct {
	Online []OnlineUser `json:"online"`
}

// Throttle fires at most once per interval, or on the next check after
// MarkDirty.
type Throttle struct {
	interval float64
	elapsed  float64
	dirty    bool
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval.Seconds()}
}

func (t *Throttle) MarkDirty() { t.dirty = true }

func (t *Throttle) Dirty() bool { return t.dirty }

// Due advances the clock by dt seconds and reports whether a broadcast is
// owed, resetting the clock when it is.
func (t *Throttle) Due(dt float64) bool {
	t.elapsed += dt
	if !t.dirty && t.elapsed < t.interval {
		return false
	}
	t.dirty = false
	t.elapsed = 0
	return true
}
