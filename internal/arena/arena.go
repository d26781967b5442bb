// Package arena is the fighting-arena room: fighters, abilities, the boss
// controller and match scoring.
package arena

import (
	"math/rand/v2"
	"slices"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
)

type Mode string

const (
	ModeDuel     Mode = "duel"
	ModeTeams    Mode = "teams"
	ModeFFA      Mode = "ffa"
	ModeBoss     Mode = "boss"
	ModePractice Mode = "practice"
)

type modeRule struct {
	maxPlayers int
	minPlayers int
	targetKOs  int // 0 never ends on score
}

var modeRules = map[Mode]modeRule{
	ModeDuel:     {maxPlayers: 2, minPlayers: 2, targetKOs: 5},
	ModeTeams:    {maxPlayers: 4, minPlayers: 4, targetKOs: 7},
	ModeFFA:      {maxPlayers: 6, minPlayers: 2, targetKOs: 6},
	ModeBoss:     {maxPlayers: 6, minPlayers: 1, targetKOs: 10},
	ModePractice: {maxPlayers: 1, minPlayers: 1},
}

// ParseMode folds s and falls back to ffa for anything unknown.
func ParseMode(s string) Mode {
	m := Mode(protocol.Fold(s))
	if _, ok := modeRules[m]; ok {
		return m
	}
	return ModeFFA
}

// End reasons carried by arena_end.
const (
	ReasonScore            = "score"
	ReasonTime             = "time"
	ReasonBossDefeated     = "boss_defeated"
	ReasonBossSurvived     = "boss_survived"
	ReasonNotEnoughPlayers = "not_enough_players"
)

type Option func(*Arena)

// WithRand injects the random source used for spawn shuffles and the boss.
func WithRand(r *rand.Rand) Option { return func(a *Arena) { a.rng = r } }

func WithCatalog(c *Catalog) Option { return func(a *Arena) { a.catalog = c } }

type Arena struct {
	id           string
	mode         Mode
	rules        modeRule
	matchSeconds int
	catalog      *Catalog
	rng          *rand.Rand
	recorder     room.ResultRecorder

	roster   room.Roster
	out      room.Outbox
	ready    map[int64]bool
	inputs   map[int64]protocol.Input
	fighters map[int64]*Fighter
	boss     *Fighter
	bossAI   *Boss

	state     room.State
	tick      uint64
	timeLeft  float64
	snapAccum float64
	events    []CombatEvent
	finalized bool
}

var _ room.Room = (*Arena)(nil)

func New(id string, p room.Params, opts ...Option) *Arena {
	mode := ParseMode(p.Mode)
	rules := modeRules[mode]
	a := &Arena{
		id:           id,
		mode:         mode,
		rules:        rules,
		matchSeconds: ClampMatchSeconds(p.MatchSeconds),
		recorder:     p.Recorder,
		roster:       room.NewRoster(rules.maxPlayers),
		ready:        make(map[int64]bool),
		inputs:       make(map[int64]protocol.Input),
		fighters:     make(map[int64]*Fighter),
		state:        room.StateWaiting,
	}
	for _, o := range opts {
		o(a)
	}
	if a.catalog == nil {
		a.catalog = DefaultCatalog()
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if a.recorder == nil {
		a.recorder = room.RecorderFunc(func(int64, room.Result) {})
	}
	a.timeLeft = float64(a.matchSeconds)
	return a
}

// NewFactory adapts New to the room registry.
func NewFactory(c *Catalog) room.Factory {
	return func(id string, p room.Params) room.Room {
		return New(id, p, WithCatalog(c))
	}
}

func ClampMatchSeconds(s int) int {
	if s <= 0 {
		return DefaultMatchSeconds
	}
	return max(MinMatchSeconds, min(MaxMatchSeconds, s))
}

func (a *Arena) Kind() room.Kind            { return room.KindArena }
func (a *Arena) ID() string                 { return a.id }
func (a *Arena) Mode() Mode                 { return a.mode }
func (a *Arena) State() room.State          { return a.state }
func (a *Arena) Members() []int64           { return a.roster.Members() }
func (a *Arena) HasMember(uid int64) bool   { return a.roster.HasMember(uid) }
func (a *Arena) Fighter(uid int64) *Fighter { return a.fighters[uid] }
func (a *Arena) Boss() *Fighter             { return a.boss }
func (a *Arena) DrainEvents() []room.Event  { return a.out.Drain() }

func (a *Arena) Join(u room.Identity) room.JoinResult {
	role := a.roster.Add(u.ID)
	if role == room.RolePlayer {
		f, ok := a.fighters[u.ID]
		if !ok {
			f = newFighter(u.ID, u.Username, u.Name())
			f.applyCharacter(a.catalog.Default())
			a.fighters[u.ID] = f
		}
		a.respawn(f)
	}
	if a.mode == ModePractice && role == room.RolePlayer {
		a.ready[u.ID] = true
	}
	a.assignTeams()
	a.emitRoster()
	return room.JoinResult{Role: role, State: a.state, ModeName: string(a.mode)}
}

func (a *Arena) Leave(uid int64) {
	delete(a.ready, uid)
	delete(a.inputs, uid)
	delete(a.fighters, uid)
	if a.roster.Remove(uid) {
		a.assignTeams()
		if a.state == room.StateRunning && a.mode != ModePractice && a.roster.PlayerCount() < a.rules.minPlayers {
			a.finish(ReasonNotEnoughPlayers)
		}
	}
	a.emitRoster()
}

func (a *Arena) Handle(uid int64, msg protocol.Envelope) {
	switch msg.Type {
	case "arena_select":
		var body struct {
			CharacterID string `json:"character_id"`
		}
		if msg.Decode(&body) != nil {
			return
		}
		f, ok := a.fighters[uid]
		ch, known := a.catalog.Get(protocol.Fold(body.CharacterID))
		if !ok || !known || a.state == room.StateRunning {
			return
		}
		f.applyCharacter(ch)
		a.assignTeams()
		a.emitRoster()

	case "arena_ready":
		body := struct {
			Ready *bool `json:"ready"`
		}{}
		if msg.Decode(&body) != nil || !a.roster.IsPlayer(uid) {
			return
		}
		if body.Ready == nil || *body.Ready {
			a.ready[uid] = true
		} else {
			delete(a.ready, uid)
		}
		a.emitRoster()

	case "arena_input":
		if !a.roster.IsPlayer(uid) {
			return
		}
		in, err := protocol.ParseInput(msg.Raw)
		if err != nil {
			return
		}
		a.inputs[uid] = in

	case "arena_start":
		if a.state == room.StateWaiting || a.state == room.StateEnded {
			a.tryStart(true)
		}

	case "arena_restart":
		if a.state != room.StateEnded {
			return
		}
		a.resetMatch(false)
		a.state = room.StateWaiting
		a.finalized = false
		clear(a.ready)
		if a.mode == ModePractice {
			for _, uid := range a.roster.Players() {
				a.ready[uid] = true
			}
		}
		a.timeLeft = float64(a.matchSeconds)
		a.emitRoster()

	default:
		a.out.Emit(room.Event{
			Type: "error",
			To:   uid,
			Body: protocol.Error{Error: protocol.CodeUnknownMessageType, Got: msg.Type},
		})
	}
}

func (a *Arena) ForceStart() bool { return a.tryStart(true) }

func (a *Arena) ForceEnd(reason string) bool {
	if a.state != room.StateRunning {
		return false
	}
	a.finish(reason)
	return true
}

func (a *Arena) tryStart(force bool) bool {
	if a.state == room.StateRunning {
		return false
	}
	players := a.roster.Players()
	enough := len(players) >= a.rules.minPlayers
	readyOK := force || a.mode == ModePractice
	if !readyOK && len(players) > 0 {
		readyOK = true
		for _, uid := range players {
			if !a.ready[uid] {
				readyOK = false
				break
			}
		}
	}
	if !enough || !readyOK {
		return false
	}

	a.resetMatch(false)
	a.state = room.StateRunning
	a.finalized = false
	a.timeLeft = float64(a.matchSeconds)
	if a.mode == ModeBoss {
		a.spawnBoss()
	}
	a.out.Emit(room.Event{
		Type:  "arena_start",
		Body:  startBody{RoomID: a.id, ModeName: string(a.mode), TimeLeft: a.timeLeft},
		Lobby: true,
	})
	return true
}

func (a *Arena) resetMatch(preserveScores bool) {
	a.tick = 0
	a.snapAccum = 0
	a.events = nil
	for _, uid := range a.roster.Players() {
		f, ok := a.fighters[uid]
		if !ok {
			continue
		}
		f.resetRound(preserveScores)
		f.applyCharacter(a.catalog.Lookup(f.CharacterID))
		a.respawn(f)
	}
	a.boss = nil
	a.bossAI = nil
}

func (a *Arena) spawnBoss() {
	ch := a.catalog.Lookup(bossCharacter)
	b := newFighter(BossID, "boss", ch.DisplayName)
	b.boss = true
	b.hpMult = bossHPMult
	b.speedMult = bossSpeedMult
	b.Team = bossTeam
	b.applyCharacter(ch)
	b.HP = b.MaxHP
	b.X, b.Y = Width/2, Height/2
	b.Charge = UltChargeMax
	a.boss = b
	a.bossAI = NewBoss(a.rng)
}

func (a *Arena) spawnPoints() [][2]float64 {
	pts := [][2]float64{
		{110, 110},
		{Width - 110, Height - 110},
		{Width - 110, 110},
		{110, Height - 110},
		{Width / 2, 100},
		{Width / 2, Height - 100},
	}
	a.rng.Shuffle(len(pts), func(i, j int) { pts[i], pts[j] = pts[j], pts[i] })
	return pts
}

func (a *Arena) respawn(f *Fighter) {
	idx := max(0, a.roster.PlayerIndex(f.UserID))
	pts := a.spawnPoints()
	p := pts[idx%len(pts)]
	f.X, f.Y = p[0], p[1]
	f.VX, f.VY = 0, 0
	f.Alive = true
	f.Respawn = 0
	f.Stun = 0
	f.HP = f.MaxHP
}

func (a *Arena) assignTeams() {
	for idx, uid := range a.roster.Players() {
		f, ok := a.fighters[uid]
		if !ok {
			continue
		}
		if a.mode == ModeTeams {
			f.Team = idx % 2
			f.Color = teamColors[f.Team%len(teamColors)]
			continue
		}
		f.Team = idx
		f.Color = a.catalog.Lookup(f.CharacterID).Color
	}
}

// everyone lists human fighters in roster order, then the boss.
func (a *Arena) everyone() []*Fighter {
	out := a.humans()
	if a.boss != nil {
		out = append(out, a.boss)
	}
	return out
}

func (a *Arena) humans() []*Fighter {
	players := a.roster.Players()
	out := make([]*Fighter, 0, len(players)+1)
	for _, uid := range players {
		if f, ok := a.fighters[uid]; ok {
			out = append(out, f)
		}
	}
	return out
}

func (a *Arena) Tick(dt float64) {
	a.tick++
	switch a.state {
	case room.StateWaiting:
		a.tryStart(false)
	case room.StateRunning:
		a.step(dt)
	}

	a.snapAccum += dt
	if a.snapAccum >= 1/SnapshotRate {
		a.snapAccum = 0
		a.out.Emit(a.Snapshot())
		a.events = nil
	}
}

func (a *Arena) step(dt float64) {
	a.timeLeft = max(0, a.timeLeft-dt)

	var bossIn protocol.Input
	if a.boss != nil && a.boss.Alive && a.bossAI != nil {
		bossIn = a.bossAI.Decide(a.boss, a.humans(), dt)
	}

	for _, f := range a.everyone() {
		if a.state != room.StateRunning {
			return
		}
		if f.Respawn > 0 {
			f.Respawn = max(0, f.Respawn-dt)
			if f.Respawn == 0 {
				a.respawn(f)
			}
			continue
		}

		in := a.inputs[f.UserID]
		if f.boss {
			in = bossIn
		} else {
			f.LastInputSeq = in.Seq
		}
		if f.decayTimers(dt) {
			f.SlowMult = 1
			f.applyCharacter(a.catalog.Lookup(f.CharacterID))
		}
		if !f.Alive {
			continue
		}

		a.handleEdges(f, in)
		a.move(f, in, dt)
	}

	a.checkWin()
}

func (a *Arena) checkWin() {
	if a.state != room.StateRunning || a.mode == ModePractice {
		return
	}
	if a.mode == ModeBoss {
		if a.boss != nil && a.boss.Alive && a.timeLeft <= 0 {
			a.finish(ReasonBossSurvived)
		}
		return
	}
	switch {
	case a.rules.targetKOs > 0 && a.highestScore() >= a.rules.targetKOs:
		a.finish(ReasonScore)
	case a.timeLeft <= 0:
		a.finish(ReasonTime)
	}
}

func (a *Arena) highestScore() int {
	best := 0
	if a.mode == ModeTeams {
		for _, s := range a.teamScores() {
			best = max(best, s)
		}
		return best
	}
	for _, f := range a.humans() {
		best = max(best, f.KOs)
	}
	return best
}

func (a *Arena) teamScores() map[int]int {
	scores := make(map[int]int)
	for _, f := range a.humans() {
		scores[f.Team] += f.KOs
	}
	return scores
}

func (a *Arena) Info() room.Info {
	players := a.roster.Players()
	tl := round(a.timeLeft, 2)
	return room.Info{
		Key:            protocol.RoomKey(string(room.KindArena), a.id),
		ID:             a.id,
		Kind:           room.KindArena,
		State:          a.state,
		Players:        players,
		PlayerCount:    len(players),
		SpectatorCount: len(a.roster.Spectators()),
		ModeName:       string(a.mode),
		TimeLeft:       &tl,
	}
}

func (a *Arena) readyList() []int64 {
	out := make([]int64, 0, len(a.ready))
	for uid := range a.ready {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}
