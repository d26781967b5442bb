package lobby

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arcade-server/internal/matchmaking"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
	"github.com/DoyleJ11/arcade-server/pkg/types"
)

func TestBuildSortsRoomsAndPresence(t *testing.T) {
	rooms := []room.Info{
		{Kind: room.KindPong, ID: "b"},
		{Kind: room.KindArena, ID: "z"},
		{Kind: room.KindPong, ID: "a"},
	}
	online := []OnlineUser{{ID: 2, Username: "zed"}, {ID: 1, Username: "amy"}}

	v := Build(rooms, online, nil, types.ServerFlags{BossEnabled: true})

	require.Len(t, v.Rooms, 3)
	assert.Equal(t, "z", v.Rooms[0].ID)
	assert.Equal(t, "a", v.Rooms[1].ID)
	assert.Equal(t, "b", v.Rooms[2].ID)
	assert.Equal(t, "amy", v.Online[0].Username)
	assert.Equal(t, room.KindPong, rooms[0].Kind, "input untouched")
}

func TestPresenceTieBreaksOnID(t *testing.T) {
	online := []OnlineUser{{ID: -1, Username: "dup"}, {ID: math.MaxInt64, Username: "dup"}, {ID: 7, Username: "dup"}}

	v := Build(nil, online, nil, types.ServerFlags{})

	ids := []int64{v.Online[0].ID, v.Online[1].ID, v.Online[2].ID}
	assert.Equal(t, []int64{-1, 7, math.MaxInt64}, ids)
}

func TestEmptyViewEncodesArrays(t *testing.T) {
	raw, err := json.Marshal(Build(nil, nil, nil, types.ServerFlags{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"rooms":[],"online":[],"server":{"boss_enabled":false},"queues":[]}`, string(raw))
}

func TestOnlineFallsBackToUsername(t *testing.T) {
	o := Online(store.User{ID: 4, Username: "kai", IsAdmin: true}, store.NewStats())
	assert.Equal(t, "kai", o.DisplayName)
	assert.True(t, o.IsAdmin)
	assert.Equal(t, "Stable", o.Stats.Tier)
}

func TestQueuesCarried(t *testing.T) {
	v := Build(nil, nil, []matchmaking.QueueSize{{Kind: "arena", Mode: "duel", Size: 1}}, types.ServerFlags{})
	assert.Equal(t, 1, v.Queues[0].Size)
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(time.Second)

	assert.False(t, th.Due(0.4))
	assert.False(t, th.Due(0.4))
	assert.True(t, th.Due(0.4), "interval elapsed")
	assert.False(t, th.Due(0.1), "clock reset")

	th.MarkDirty()
	assert.True(t, th.Dirty())
	assert.True(t, th.Due(0))
	assert.False(t, th.Dirty())
	assert.False(t, th.Due(0.5))
}
