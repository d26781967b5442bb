package pong

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
)

type recorded struct {
	uid int64
	res room.Result
}

func newTestRoom(t *testing.T) (*Room, *[]recorded) {
	t.Helper()
	var got []recorded
	rec := room.RecorderFunc(func(uid int64, r room.Result) { got = append(got, recorded{uid, r}) })
	r := New("p1", room.Params{Recorder: rec}, rand.New(rand.NewPCG(3, 4)))
	r.Join(room.Identity{ID: 1, Username: "left"})
	r.Join(room.Identity{ID: 2, Username: "right"})
	r.DrainEvents()
	return r, &got
}

func envelope(t *testing.T, typ string, body any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, body)
	require.NoError(t, err)
	return env
}

func TestAutoStartAndSpectator(t *testing.T) {
	r := New("p1", room.Params{}, rand.New(rand.NewPCG(1, 1)))
	res := r.Join(room.Identity{ID: 1})
	assert.Equal(t, room.RolePlayer, res.Role)
	assert.Equal(t, "left", res.Seat)
	assert.Equal(t, room.StateWaiting, res.State)

	res = r.Join(room.Identity{ID: 2})
	assert.Equal(t, "right", res.Seat)
	assert.Equal(t, room.StateRunning, res.State)

	res = r.Join(room.Identity{ID: 3})
	assert.Equal(t, room.RoleSpectator, res.Role)
	assert.Empty(t, res.Seat)
}

func TestMissedBallScoresForOpponent(t *testing.T) {
	r, _ := newTestRoom(t)
	r.ballX, r.ballY, r.ballVX, r.ballVY = 5, 10, -260, 0

	r.Tick(0.1)

	assert.Equal(t, [2]int{0, 1}, r.Score())
	assert.Equal(t, Width/2, r.ballX)
	assert.Greater(t, r.ballVX, 0.0)
}

func TestPaddleReturnsBallFaster(t *testing.T) {
	r, _ := newTestRoom(t)
	r.ballX, r.ballY, r.ballVX, r.ballVY = 35, Height/2, -260, 0

	r.Tick(0.1)

	assert.Equal(t, [2]int{0, 0}, r.Score())
	assert.InDelta(t, 260*speedUp, r.ballVX, 1e-9)
}

func TestPaddleInputMovesOwnPaddleOnly(t *testing.T) {
	r, _ := newTestRoom(t)
	r.ballX, r.ballY, r.ballVX, r.ballVY = Width/2, Height/2, 0, 0

	r.Handle(1, envelope(t, "pong_input", map[string]bool{"up": true}))
	r.Handle(3, envelope(t, "pong_input", map[string]bool{"down": true}))
	r.Tick(0.1)

	assert.InDelta(t, Height/2-PaddleSpeed*0.1, r.leftY, 1e-9)
	assert.Equal(t, Height/2, r.rightY)
}

func TestFirstToFiveWinsOnce(t *testing.T) {
	r, got := newTestRoom(t)
	r.score = [2]int{4, 1}
	r.ballX, r.ballY, r.ballVX, r.ballVY = Width-5, 10, 260, 0

	r.Tick(0.1)
	require.Equal(t, room.StateEnded, r.State())
	r.Tick(0.1)
	assert.False(t, r.ForceEnd("admin"))

	require.Len(t, *got, 2)
	assert.Equal(t, recorded{1, room.Result{Win: true}}, (*got)[0])
	assert.Equal(t, recorded{2, room.Result{Win: false}}, (*got)[1])

	var end room.Event
	for _, ev := range r.DrainEvents() {
		if ev.Type == "pong_end" {
			end = ev
		}
	}
	raw, err := json.Marshal(end.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"room_id":"p1","reason":"score_or_time","score":[5,1],"result":{"winner_user_id":1,"loser_user_id":2}}`, string(raw))
}

func TestTimeoutDrawRecordsNothing(t *testing.T) {
	r, got := newTestRoom(t)
	r.score = [2]int{2, 2}
	r.timeLeft = 0.05
	r.ballVX, r.ballVY = 0, 0

	r.Tick(0.1)

	assert.Equal(t, room.StateEnded, r.State())
	assert.Empty(t, *got)
}

func TestLeavingForfeits(t *testing.T) {
	r, got := newTestRoom(t)
	r.score = [2]int{3, 0}

	r.Leave(1)

	assert.Equal(t, room.StateEnded, r.State())
	assert.Equal(t, [2]int{3, 5}, r.Score())
	require.Len(t, *got, 2)
	assert.Equal(t, int64(2), (*got)[0].uid)
	assert.True(t, (*got)[0].res.Win)
	assert.False(t, r.HasMember(1))
}

func TestRestartOnlyAfterEnd(t *testing.T) {
	r, _ := newTestRoom(t)
	r.score = [2]int{1, 0}
	r.Handle(1, envelope(t, "pong_restart", nil))
	assert.Equal(t, [2]int{1, 0}, r.Score())

	require.True(t, r.ForceEnd("admin"))
	r.Handle(1, envelope(t, "pong_restart", nil))
	assert.Equal(t, room.StateRunning, r.State())
	assert.Equal(t, [2]int{0, 0}, r.Score())
}

func TestUnknownMessageIsPrivateError(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Handle(2, envelope(t, "pong_dance", nil))
	evs := r.DrainEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, "error", evs[0].Type)
	assert.Equal(t, int64(2), evs[0].To)
}
