package typing

import (
	"math/rand/v2"
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

func newDuel(t *testing.T) (*Room, *[]recorded) {
	t.Helper()
	var got []recorded
	rec := room.RecorderFunc(func(uid int64, r room.Result) { got = append(got, recorded{uid, r.Win}) })
	r := New("t1", room.Params{Recorder: rec}, rand.New(rand.NewPCG(5, 6)))
	r.Join(room.Identity{ID: 10})
	r.Join(room.Identity{ID: 20})
	r.DrainEvents()
	return r, &got
}

func submit(t *testing.T, r *Room, uid int64, text string) {
	t.Helper()
	env, err := protocol.NewEnvelope("typing_submit", map[string]string{"text": text})
	require.NoError(t, err)
	r.Handle(uid, env)
}

func TestStartsWithPhraseFromList(t *testing.T) {
	r, _ := newDuel(t)
	assert.Equal(t, room.StateRunning, r.State())
	assert.Equal(t, 1, r.Round())
	assert.Contains(t, Phrases, r.Phrase())
}

func TestIncorrectSubmissionGoesToSubmitterOnly(t *testing.T) {
	r, _ := newDuel(t)
	submit(t, r, 10, "definitely not it")

	evs := r.DrainEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, "typing_incorrect", evs[0].Type)
	assert.Equal(t, int64(10), evs[0].To)
	assert.Equal(t, 0, r.Score(10))
}

func TestSurroundingWhitespaceIsIgnored(t *testing.T) {
	r, _ := newDuel(t)
	submit(t, r, 20, "  "+r.Phrase()+"\n")

	assert.Equal(t, 1, r.Score(20))
	assert.Equal(t, 2, r.Round())
}

func TestTwoRoundsWinMatch(t *testing.T) {
	r, got := newDuel(t)
	submit(t, r, 20, r.Phrase())
	submit(t, r, 20, r.Phrase())

	assert.Equal(t, room.StateEnded, r.State())
	assert.Equal(t, []recorded{{20, true}, {10, false}}, *got)

	submit(t, r, 10, r.Phrase())
	assert.Equal(t, 0, r.Score(10))
}

func TestRoundTimeoutAdvances(t *testing.T) {
	r, _ := newDuel(t)
	r.Tick(RoundTimeout + 0.1)
	assert.Equal(t, 2, r.Round())
	assert.Equal(t, room.StateRunning, r.State())
}

func TestLastRoundTimeoutEndsDraw(t *testing.T) {
	r, got := newDuel(t)
	submit(t, r, 10, r.Phrase())
	submit(t, r, 20, r.Phrase())
	require.Equal(t, 3, r.Round())

	r.Tick(RoundTimeout + 0.1)

	assert.Equal(t, room.StateEnded, r.State())
	assert.Empty(t, *got)
}

func TestSpectatorCannotSubmit(t *testing.T) {
	r, _ := newDuel(t)
	r.Join(room.Identity{ID: 30})
	submit(t, r, 30, r.Phrase())
	assert.Equal(t, 1, r.Round())
}

func TestLeaveEndsMatch(t *testing.T) {
	r, got := newDuel(t)
	r.Leave(10)
	assert.Equal(t, room.StateEnded, r.State())
	assert.Empty(t, *got)
	assert.ElementsMatch(t, []int64{20}, r.Members())
}
