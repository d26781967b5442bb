package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
	"github.com/DoyleJ11/arcade-server/internal/store/memstore"
)

func TestStatsApply(t *testing.T) {
	tests := []struct {
		name  string
		start store.Stats
		res   room.Result
		want  store.Stats
	}{
		{
			name:  "first win",
			start: store.NewStats(),
			res:   room.Result{Win: true, KOs: 3, Deaths: 1},
			want:  store.Stats{Wins: 1, KOs: 3, Deaths: 1, Streak: 1, Cortisol: 975, Tier: "Stable"},
		},
		{
			name:  "streak deepens the drop",
			start: store.Stats{Wins: 2, Streak: 2, Cortisol: 720},
			res:   room.Result{Win: true},
			want:  store.Stats{Wins: 3, Streak: 3, Cortisol: 685, Tier: "Calm"},
		},
		{
			name:  "loss resets streak",
			start: store.Stats{Wins: 4, Streak: 4, Cortisol: 1190},
			res:   room.Result{Win: false, Deaths: 2},
			want:  store.Stats{Wins: 4, Losses: 1, Deaths: 2, Cortisol: 1210, Tier: "Cooked"},
		},
		{
			name:  "floor at zero",
			start: store.Stats{Streak: 10, Cortisol: 30},
			res:   room.Result{Win: true},
			want:  store.Stats{Wins: 1, Streak: 11, Cortisol: 0, Tier: "Zen"},
		},
		{
			name:  "ceiling",
			start: store.Stats{Cortisol: 4995},
			res:   room.Result{},
			want:  store.Stats{Losses: 1, Cortisol: 5000, Tier: "Cooked"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.start.Apply(tc.res))
		})
	}
}

func TestTierBoundaries(t *testing.T) {
	assert.Equal(t, "Zen", store.Tier(300))
	assert.Equal(t, "Calm", store.Tier(301))
	assert.Equal(t, "Calm", store.Tier(700))
	assert.Equal(t, "Stable", store.Tier(1200))
	assert.Equal(t, "Cooked", store.Tier(1201))
}

func TestSortStandings(t *testing.T) {
	rows := []store.Standing{
		{Username: "c", Stats: store.Stats{Cortisol: 900, Wins: 1}},
		{Username: "b", Stats: store.Stats{Cortisol: 800, Wins: 1}},
		{Username: "a", Stats: store.Stats{Cortisol: 800, Wins: 1}},
		{Username: "d", Stats: store.Stats{Cortisol: 800, Wins: 5}},
	}
	store.SortStandings(rows)
	var order []string
	for _, r := range rows {
		order = append(order, r.Username)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, order)
}

func TestWorkerDrainsOnShutdown(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	u, err := s.CreateUser(ctx, "ana", "", "hash")
	require.NoError(t, err)

	w := store.NewWorker(s, zaptest.NewLogger(t))
	w.Submit(store.RecordResult{UserID: u.ID, Result: room.Result{Win: true}})
	w.Submit(store.SetMute{UserID: u.ID, Until: 123})
	w.Submit(store.SetBan{UserID: u.ID, Until: 456})
	w.Submit(store.RecordResult{UserID: 999, Result: room.Result{}})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	st, err := s.StatsFor(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Wins)

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(123), got.MutedUntil)
	assert.Equal(t, int64(456), got.BannedUntil)
}
