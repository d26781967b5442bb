package chess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
)

type recorded struct {
	uid int64
	win bool
}

func newTable(t *testing.T) (*Room, *[]recorded) {
	t.Helper()
	var got []recorded
	rec := room.RecorderFunc(func(uid int64, r room.Result) { got = append(got, recorded{uid, r.Win}) })
	r := New("c1", room.Params{Recorder: rec})
	r.Join(room.Identity{ID: 1})
	r.Join(room.Identity{ID: 2})
	r.DrainEvents()
	return r, &got
}

func send(t *testing.T, r *Room, uid int64, typ string, body any) {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, body)
	require.NoError(t, err)
	r.Handle(uid, env)
}

func move(t *testing.T, r *Room, uid int64, from, to string) {
	t.Helper()
	send(t, r, uid, "chess_move", map[string]string{"from": from, "to": to})
}

func TestSeatsAndSpectators(t *testing.T) {
	r := New("c1", room.Params{})
	res := r.Join(room.Identity{ID: 1})
	assert.Equal(t, White, res.Seat)
	assert.Equal(t, room.StateWaiting, res.State)

	res = r.Join(room.Identity{ID: 2})
	assert.Equal(t, Black, res.Seat)
	assert.Equal(t, room.StateRunning, res.State)

	res = r.Join(room.Identity{ID: 3})
	assert.Equal(t, room.RoleSpectator, res.Role)
	assert.Equal(t, []int64{3}, r.spectators())
	assert.Equal(t, map[string]int64{White: 1, Black: 2}, r.Info().Seats)
}

func TestMoveOnlyOnYourTurn(t *testing.T) {
	r, _ := newTable(t)
	move(t, r, 2, "e7", "e5")
	assert.Empty(t, r.DrainEvents())

	move(t, r, 1, "e2", "e4")
	evs := r.DrainEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, "chess_move_ok", evs[0].Type)
	body := evs[0].Body.(moveOKBody)
	assert.Equal(t, "e2e4", body.UCI)
	assert.Equal(t, StatusOngoing, body.Status)
	assert.Equal(t, Black, r.turn())
}

func TestIllegalMoveRejectedToMover(t *testing.T) {
	r, _ := newTable(t)
	move(t, r, 1, "e2", "e5")

	evs := r.DrainEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, "chess_move_reject", evs[0].Type)
	assert.Equal(t, int64(1), evs[0].To)
	assert.Equal(t, White, r.turn())
}

func TestFoolsMateRecordsBlackWin(t *testing.T) {
	r, got := newTable(t)
	move(t, r, 1, "f2", "f3")
	move(t, r, 2, "e7", "e5")
	move(t, r, 1, "g2", "g4")
	move(t, r, 2, "d8", "h4")

	assert.Equal(t, room.StateEnded, r.State())
	assert.Equal(t, StatusCheckmate, r.Status())
	assert.Equal(t, Black, r.Winner())
	assert.Equal(t, []recorded{{2, true}, {1, false}}, *got)

	send(t, r, 1, "chess_resign", nil)
	assert.Len(t, *got, 2)
}

func TestAgreedDrawRecordsNothing(t *testing.T) {
	r, got := newTable(t)
	send(t, r, 1, "chess_offer_draw", nil)
	send(t, r, 1, "chess_accept_draw", nil)
	assert.Equal(t, room.StateRunning, r.State())

	send(t, r, 2, "chess_accept_draw", nil)
	assert.Equal(t, room.StateEnded, r.State())
	assert.Equal(t, StatusDraw, r.Status())
	assert.Empty(t, *got)
}

func TestMoveClearsDrawOffer(t *testing.T) {
	r, _ := newTable(t)
	send(t, r, 1, "chess_offer_draw", nil)
	move(t, r, 1, "e2", "e4")
	send(t, r, 2, "chess_accept_draw", nil)
	assert.Equal(t, room.StateRunning, r.State())
}

func TestResignAwardsOpponent(t *testing.T) {
	r, got := newTable(t)
	send(t, r, 1, "chess_resign", nil)

	assert.Equal(t, StatusResign, r.Status())
	assert.Equal(t, Black, r.Winner())
	assert.Equal(t, []recorded{{2, true}, {1, false}}, *got)
}

func TestClockRunsForSideToMove(t *testing.T) {
	r, got := newTable(t)
	r.Tick(1)
	assert.Equal(t, ClockMillis-1000, r.Clock(White))
	assert.Equal(t, ClockMillis, r.Clock(Black))

	r.clocks[White] = 10
	r.Tick(0.05)
	assert.Equal(t, StatusTimeout, r.Status())
	assert.Equal(t, Black, r.Winner())
	assert.Equal(t, []recorded{{2, true}, {1, false}}, *got)
}

func TestLeavingSeatResigns(t *testing.T) {
	r, got := newTable(t)
	r.Leave(2)

	assert.Equal(t, room.StateEnded, r.State())
	assert.Equal(t, White, r.Winner())
	assert.Equal(t, []recorded{{1, true}, {2, false}}, *got)

	res := r.Join(room.Identity{ID: 5})
	assert.Equal(t, Black, res.Seat)
}

func TestRestartKeepsSeats(t *testing.T) {
	r, _ := newTable(t)
	move(t, r, 1, "e2", "e4")
	require.True(t, r.ForceEnd("admin"))

	send(t, r, 2, "chess_restart", nil)

	assert.Equal(t, room.StateRunning, r.State())
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", r.FEN())
	assert.Equal(t, map[string]int64{White: 1, Black: 2}, r.Info().Seats)
}
