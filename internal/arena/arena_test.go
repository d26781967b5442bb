package arena

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
)

const frame = 1.0 / 60

type recordedResult struct {
	userID int64
	result room.Result
}

type fakeRecorder struct {
	calls []recordedResult
}

func (r *fakeRecorder) RecordResult(userID int64, res room.Result) {
	r.calls = append(r.calls, recordedResult{userID: userID, result: res})
}

func newTestArena(t *testing.T, mode Mode, rec *fakeRecorder) *Arena {
	t.Helper()
	return New("t1", room.Params{Mode: string(mode), Recorder: rec}, WithRand(rand.New(rand.NewPCG(1, 2))))
}

func envelope(t *testing.T, typ string, body any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, body)
	require.NoError(t, err)
	return env
}

func join(a *Arena, ids ...int64) {
	for _, id := range ids {
		a.Join(room.Identity{ID: id, Username: "user" + string(rune('a'+id))})
	}
}

func startDuel(t *testing.T) (*Arena, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	a := newTestArena(t, ModeDuel, rec)
	join(a, 1, 2)
	a.Handle(1, envelope(t, "arena_ready", map[string]bool{"ready": true}))
	a.Handle(2, envelope(t, "arena_ready", map[string]bool{"ready": true}))
	a.Handle(1, envelope(t, "arena_start", nil))
	require.Equal(t, room.StateRunning, a.State())
	a.DrainEvents()
	return a, rec
}

func placeAdjacent(att, target *Fighter) {
	att.X, att.Y = 300, 300
	target.X, target.Y = 340, 300
}

func eventsOf(events []CombatEvent, kind string) []CombatEvent {
	var out []CombatEvent
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func drainedOfType(a *Arena, typ string) []room.Event {
	var out []room.Event
	for _, e := range a.DrainEvents() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestReadyPlayersAutoStart(t *testing.T) {
	a := newTestArena(t, ModeDuel, &fakeRecorder{})
	join(a, 1, 2)
	a.Tick(frame)
	assert.Equal(t, room.StateWaiting, a.State(), "nobody ready yet")

	a.Handle(1, envelope(t, "arena_ready", nil))
	a.Handle(2, envelope(t, "arena_ready", map[string]bool{"ready": true}))
	a.Tick(frame)
	assert.Equal(t, room.StateRunning, a.State())
	assert.Len(t, drainedOfType(a, "arena_start"), 1)
}

func TestForceStartNeedsMinimumPlayers(t *testing.T) {
	a := newTestArena(t, ModeDuel, &fakeRecorder{})
	join(a, 1)
	assert.False(t, a.ForceStart())
	assert.Equal(t, room.StateWaiting, a.State())
}

func TestFullRoomJoinsAsSpectator(t *testing.T) {
	a := newTestArena(t, ModeDuel, &fakeRecorder{})
	join(a, 1, 2)
	res := a.Join(room.Identity{ID: 3, Username: "late"})

	assert.Equal(t, room.RoleSpectator, res.Role)
	assert.Equal(t, []int64{1, 2}, a.Info().Players)
	assert.Equal(t, 1, a.Info().SpectatorCount)
	assert.Nil(t, a.Fighter(3))
}

func TestBasicHitDamagesAndStuns(t *testing.T) {
	a, _ := startDuel(t)
	att, target := a.Fighter(1), a.Fighter(2)
	placeAdjacent(att, target)

	a.Handle(1, envelope(t, "arena_input", protocol.Input{Seq: 1, Basic: true}))
	a.Tick(frame)

	assert.InDelta(t, target.MaxHP-BasicDamage*att.DamageScale, target.HP, 1e-9)
	assert.Greater(t, target.Stun, 0.0)
	assert.Equal(t, int64(1), att.LastInputSeq)

	hits := eventsOf(a.events, "hit")
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), *hits[0].Attacker)
	assert.Equal(t, int64(2), *hits[0].Target)
	assert.Empty(t, eventsOf(a.events, "ko"))
}

func TestKnockoutAndRespawn(t *testing.T) {
	a, _ := startDuel(t)
	att, target := a.Fighter(1), a.Fighter(2)
	placeAdjacent(att, target)
	target.HP = 5

	a.Handle(1, envelope(t, "arena_input", protocol.Input{Basic: true}))
	a.Tick(frame)

	assert.False(t, target.Alive)
	assert.Zero(t, target.HP)
	assert.Greater(t, target.Respawn, 0.0)
	assert.Equal(t, 1, att.KOs)
	assert.Equal(t, 1, target.Deaths)

	kos := eventsOf(a.events, "ko")
	require.Len(t, kos, 1)
	assert.Equal(t, int64(1), *kos[0].Killer)
	assert.Equal(t, int64(2), *kos[0].Victim)

	for i := 0; i < int(RespawnSeconds/frame)+5; i++ {
		a.Tick(frame)
	}
	assert.True(t, target.Alive)
	assert.Equal(t, target.MaxHP, target.HP)
}

func TestHealthStaysInBounds(t *testing.T) {
	a, _ := startDuel(t)
	att, target := a.Fighter(1), a.Fighter(2)

	for i := 0; i < 900; i++ {
		if target.Alive {
			placeAdjacent(att, target)
		}
		a.Handle(1, envelope(t, "arena_input", protocol.Input{Seq: int64(i), Basic: i%2 == 0, Special: i%3 == 0}))
		a.Tick(frame)
		for _, f := range []*Fighter{att, target} {
			require.GreaterOrEqual(t, f.HP, 0.0)
			require.LessOrEqual(t, f.HP, f.MaxHP)
			if !f.Alive {
				require.Zero(t, f.HP)
			}
		}
	}
}

func TestHeldButtonFiresOncePerPress(t *testing.T) {
	a := newTestArena(t, ModePractice, &fakeRecorder{})
	join(a, 1)
	a.Handle(1, envelope(t, "arena_start", nil))
	require.Equal(t, room.StateRunning, a.State())
	a.DrainEvents()

	for _, held := range []bool{true, true, true, false, true} {
		a.Handle(1, envelope(t, "arena_input", protocol.Input{Basic: held}))
		a.Tick(0.2)
	}

	activations := 0
	for _, e := range drainedOfType(a, "arena_state") {
		body := e.Body.(stateBody)
		activations += len(eventsOf(body.Events, "whiff"))
	}
	assert.Equal(t, 2, activations)
}

func TestStunnedFighterCannotAct(t *testing.T) {
	a, _ := startDuel(t)
	att := a.Fighter(1)
	att.Stun = 1

	a.Handle(1, envelope(t, "arena_input", protocol.Input{Basic: true}))
	a.Tick(frame)
	assert.Empty(t, eventsOf(a.events, "whiff"))
	assert.Empty(t, eventsOf(a.events, "hit"))
}

func TestTimerDecayIsLinearInElapsedTime(t *testing.T) {
	sequences := [][]float64{
		{1.0},
		{0.25, 0.25, 0.5},
		{0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125},
	}
	var got []Fighter
	for _, seq := range sequences {
		f := newFighter(1, "a", "a")
		f.DashCD, f.BasicCD, f.SpecialCD, f.UltCD = 1.5, 0.35, 2.2, 8
		f.Stun, f.UltBuff, f.Slow, f.DashTimer = 0.5, 6, 3, 0.16
		for _, dt := range seq {
			f.decayTimers(dt)
		}
		got = append(got, *f)
	}
	for _, f := range got[1:] {
		assert.InDelta(t, got[0].DashCD, f.DashCD, 1e-9)
		assert.InDelta(t, got[0].UltCD, f.UltCD, 1e-9)
		assert.InDelta(t, got[0].SpecialCD, f.SpecialCD, 1e-9)
		assert.InDelta(t, got[0].Slow, f.Slow, 1e-9)
		assert.InDelta(t, got[0].UltBuff, f.UltBuff, 1e-9)
		assert.Zero(t, f.BasicCD)
		assert.Zero(t, f.Stun)
	}
	assert.Zero(t, got[0].BasicCD)
	assert.Zero(t, got[0].Stun)
	assert.InDelta(t, 0.5, got[0].DashCD, 1e-12)
}

func TestSlowExpiryRederivesStats(t *testing.T) {
	a := newTestArena(t, ModePractice, &fakeRecorder{})
	join(a, 1)
	a.Handle(1, envelope(t, "arena_select", map[string]string{"character_id": "Edward"}))
	a.Handle(1, envelope(t, "arena_start", nil))
	f := a.Fighter(1)
	base := f.HitboxScale

	a.Handle(1, envelope(t, "arena_input", protocol.Input{Special: true}))
	a.Tick(frame)
	assert.Less(t, f.HitboxScale, base)
	assert.Greater(t, f.Slow, 0.0)

	a.Handle(1, envelope(t, "arena_input", protocol.Input{}))
	for i := 0; i < 200; i++ {
		a.Tick(frame)
	}
	assert.Equal(t, base, f.HitboxScale)
	assert.Equal(t, 1.0, f.SlowMult)
}

func TestCharacterSelect(t *testing.T) {
	a := newTestArena(t, ModeDuel, &fakeRecorder{})
	join(a, 1, 2)
	a.Handle(1, envelope(t, "arena_select", map[string]string{"character_id": "big_t"}))
	assert.Equal(t, "big_t", a.Fighter(1).CharacterID)
	assert.Equal(t, 130.0, a.Fighter(1).MaxHP)

	a.Handle(1, envelope(t, "arena_select", map[string]string{"character_id": "nobody"}))
	assert.Equal(t, "big_t", a.Fighter(1).CharacterID)

	a.ForceStart()
	a.Handle(1, envelope(t, "arena_select", map[string]string{"character_id": "simon"}))
	assert.Equal(t, "big_t", a.Fighter(1).CharacterID, "locked while running")
}

func TestDecisiveResultRecordedOnce(t *testing.T) {
	a, rec := startDuel(t)
	a.Fighter(1).KOs = 2
	a.Fighter(2).KOs = 1

	require.True(t, a.ForceEnd("admin_end"))
	assert.False(t, a.ForceEnd("admin_end"))
	a.finish(ReasonTime)

	require.Len(t, rec.calls, 2)
	byUser := map[int64]room.Result{}
	for _, c := range rec.calls {
		byUser[c.userID] = c.result
	}
	assert.Equal(t, room.Result{Win: true, KOs: 2}, byUser[1])
	assert.Equal(t, room.Result{Win: false, KOs: 1}, byUser[2])
	assert.Len(t, drainedOfType(a, "arena_end"), 1)
}

func TestTieRecordsNothing(t *testing.T) {
	a, rec := startDuel(t)
	a.Fighter(1).KOs = 1
	a.Fighter(2).KOs = 1
	a.ForceEnd("admin_end")
	assert.Empty(t, rec.calls)
}

func TestTeamTieRecordsNothing(t *testing.T) {
	rec := &fakeRecorder{}
	a := newTestArena(t, ModeTeams, rec)
	join(a, 1, 2, 3, 4)
	require.True(t, a.ForceStart())
	assert.Equal(t, 0, a.Fighter(1).Team)
	assert.Equal(t, 1, a.Fighter(2).Team)

	a.Fighter(1).KOs = 2
	a.Fighter(4).KOs = 2
	a.ForceEnd("admin_end")
	assert.Empty(t, rec.calls)
}

func TestTeamWinRecordsEveryone(t *testing.T) {
	rec := &fakeRecorder{}
	a := newTestArena(t, ModeTeams, rec)
	join(a, 1, 2, 3, 4)
	require.True(t, a.ForceStart())
	a.Fighter(1).KOs = 3
	a.Fighter(2).KOs = 2

	a.ForceEnd("admin_end")
	require.Len(t, rec.calls, 4)
	for _, c := range rec.calls {
		assert.Equal(t, c.userID == 1 || c.userID == 3, c.result.Win)
	}
}

func TestScoreLimitEndsMatch(t *testing.T) {
	a, rec := startDuel(t)
	a.Fighter(1).KOs = modeRules[ModeDuel].targetKOs
	a.Tick(frame)

	assert.Equal(t, room.StateEnded, a.State())
	ends := drainedOfType(a, "arena_end")
	require.Len(t, ends, 1)
	assert.Equal(t, ReasonScore, ends[0].Body.(endBody).Reason)
	assert.Len(t, rec.calls, 2)
}

func TestLeavingBelowMinimumEndsMatch(t *testing.T) {
	a, _ := startDuel(t)
	a.Leave(2)

	assert.Equal(t, room.StateEnded, a.State())
	ends := drainedOfType(a, "arena_end")
	require.Len(t, ends, 1)
	assert.Equal(t, ReasonNotEnoughPlayers, ends[0].Body.(endBody).Reason)
}

func TestRestartResetsScores(t *testing.T) {
	a, _ := startDuel(t)
	a.Fighter(1).KOs = 2
	a.ForceEnd("admin_end")

	a.Handle(1, envelope(t, "arena_restart", nil))
	assert.Equal(t, room.StateWaiting, a.State())
	assert.Zero(t, a.Fighter(1).KOs)
	assert.Empty(t, a.readyList())
}

func TestBossDefeatIsAWin(t *testing.T) {
	rec := &fakeRecorder{}
	a := newTestArena(t, ModeBoss, rec)
	join(a, 1)
	a.Handle(1, envelope(t, "arena_ready", nil))
	a.Handle(1, envelope(t, "arena_start", nil))
	require.Equal(t, room.StateRunning, a.State())

	boss := a.Boss()
	require.NotNil(t, boss)
	assert.InDelta(t, 180*bossHPMult, boss.MaxHP, 1e-9)

	human := a.Fighter(1)
	placeAdjacent(human, boss)
	boss.HP = 1
	a.DrainEvents()

	a.Handle(1, envelope(t, "arena_input", protocol.Input{Basic: true}))
	a.Tick(frame)

	assert.Equal(t, room.StateEnded, a.State())
	ends := drainedOfType(a, "arena_end")
	require.Len(t, ends, 1)
	assert.Equal(t, ReasonBossDefeated, ends[0].Body.(endBody).Reason)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, int64(1), rec.calls[0].userID)
	assert.True(t, rec.calls[0].result.Win)
	assert.Equal(t, 1, rec.calls[0].result.KOs)
}

func TestBossSurvivesOnTimeout(t *testing.T) {
	rec := &fakeRecorder{}
	a := newTestArena(t, ModeBoss, rec)
	join(a, 1)
	require.True(t, a.ForceStart())
	a.timeLeft = frame / 2
	a.DrainEvents()

	a.Tick(frame)

	assert.Equal(t, room.StateEnded, a.State())
	ends := drainedOfType(a, "arena_end")
	require.Len(t, ends, 1)
	assert.Equal(t, ReasonBossSurvived, ends[0].Body.(endBody).Reason)
	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].result.Win)
}

func TestBossModeFactionsOnlyHitEachOther(t *testing.T) {
	a := newTestArena(t, ModeBoss, &fakeRecorder{})
	join(a, 1, 2)
	require.True(t, a.ForceStart())

	targets := a.targets(a.Fighter(1))
	require.Len(t, targets, 1)
	assert.True(t, targets[0].IsBoss())

	bossTargets := a.targets(a.Boss())
	assert.Len(t, bossTargets, 2)
}

func TestBossUltSpendsCharge(t *testing.T) {
	a := newTestArena(t, ModeBoss, &fakeRecorder{})
	join(a, 1)
	require.True(t, a.ForceStart())

	boss, human := a.Boss(), a.Fighter(1)
	require.Equal(t, UltChargeMax, boss.Charge)
	placeAdjacent(boss, human)
	a.DrainEvents()

	a.handleEdges(boss, protocol.Input{Ult: true})
	assert.Less(t, human.HP, human.MaxHP)
	assert.InDelta(t, UltCooldown, boss.UltCD, 1e-9)
	assert.Less(t, boss.Charge, UltChargeMax, "ult spends the meter")
	assert.InDelta(t, (human.MaxHP-human.HP)*chargePerDamage, boss.Charge, 1e-9)

	spent := boss.Charge
	a.move(boss, protocol.Input{}, 1)
	assert.InDelta(t, spent+passiveChargeRate, boss.Charge, 1e-9)

	ai := NewBoss(rand.New(constSource(0)))
	assert.False(t, ai.Decide(boss, []*Fighter{human}, frame).Ult)
}

func TestClampMatchSeconds(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultMatchSeconds},
		{30, MinMatchSeconds},
		{100, 100},
		{500, MaxMatchSeconds},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClampMatchSeconds(tc.in))
	}
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeBoss, ParseMode(" BOSS "))
	assert.Equal(t, ModeFFA, ParseMode("bogus"))
}
