// Package reaction is a best-of-five reflex duel. Each round waits a random
// delay, then the first player to press after "go" takes the point.
package reaction

import (
	"maps"
	"math"
	"math/rand/v2"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseWait     Phase = "wait"
	PhaseGo       Phase = "go"
	PhaseRoundEnd Phase = "round_end"
)

const (
	BestOf = 5

	minWait          = 1.0
	maxWait          = 5.0
	goWindow         = 2.0
	roundEndPause    = 1.0
	falseStartPause  = 1.2
	snapshotInterval = 0.2
)

type Room struct {
	id       string
	rng      *rand.Rand
	recorder room.ResultRecorder
	roster   room.Roster
	out      room.Outbox

	state      room.State
	phase      Phase
	phaseTimer float64
	round      int
	score      map[int64]int
	snapAccum  float64
}

var _ room.Room = (*Room)(nil)

func New(id string, p room.Params, rng *rand.Rand) *Room {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r := &Room{id: id, rng: rng, recorder: p.Recorder, roster: room.NewRoster(2)}
	if r.recorder == nil {
		r.recorder = room.RecorderFunc(func(int64, room.Result) {})
	}
	r.reset()
	return r
}

func Factory(id string, p room.Params) room.Room { return New(id, p, nil) }

func (r *Room) reset() {
	r.state = room.StateWaiting
	r.phase = PhaseIdle
	r.phaseTimer = 0
	r.round = 0
	r.score = make(map[int64]int)
	r.snapAccum = 0
	for _, uid := range r.roster.Players() {
		r.score[uid] = 0
	}
}

func (r *Room) Kind() room.Kind           { return room.KindReaction }
func (r *Room) ID() string                { return r.id }
func (r *Room) State() room.State         { return r.state }
func (r *Room) Phase() Phase              { return r.phase }
func (r *Room) Round() int                { return r.round }
func (r *Room) Score(uid int64) int       { return r.score[uid] }
func (r *Room) Members() []int64          { return r.roster.Members() }
func (r *Room) HasMember(uid int64) bool  { return r.roster.HasMember(uid) }
func (r *Room) DrainEvents() []room.Event { return r.out.Drain() }
func (r *Room) ForceStart() bool          { return false }

func (r *Room) Join(u room.Identity) room.JoinResult {
	role := r.roster.Add(u.ID)
	if role == room.RolePlayer {
		if _, ok := r.score[u.ID]; !ok {
			r.score[u.ID] = 0
		}
	}
	r.maybeStart()
	r.emitRoster()
	return room.JoinResult{Role: role, State: r.state}
}

func (r *Room) maybeStart() {
	if r.roster.PlayerCount() == 2 && r.state == room.StateWaiting {
		r.state = room.StateRunning
		r.nextRound()
	}
}

// Leave ends a running duel without a result once a player walks out.
func (r *Room) Leave(uid int64) {
	wasPlayer := r.roster.Remove(uid)
	if wasPlayer && r.state == room.StateRunning {
		r.finish("player_left")
	}
	r.emitRoster()
}

func (r *Room) Handle(uid int64, msg protocol.Envelope) {
	switch msg.Type {
	case "reaction_press":
		if r.state != room.StateRunning || !r.roster.IsPlayer(uid) {
			return
		}
		r.press(uid)
	case "reaction_restart":
		if r.state != room.StateEnded {
			return
		}
		r.reset()
		r.maybeStart()
		r.emitRoster()
	default:
		r.out.Emit(room.Event{Type: "error", To: uid, Body: protocol.Error{Error: protocol.CodeUnknownMessageType, Got: msg.Type}})
	}
}

func (r *Room) press(uid int64) {
	switch r.phase {
	case PhaseWait:
		for _, p := range r.roster.Players() {
			if p != uid {
				r.score[p]++
			}
		}
		r.phase, r.phaseTimer = PhaseRoundEnd, falseStartPause
		r.out.Emit(room.Event{Type: "reaction_false_start", Body: pointBody{RoomID: r.id, UserID: uid, Score: r.scoreView()}})
	case PhaseGo:
		r.score[uid]++
		r.phase, r.phaseTimer = PhaseRoundEnd, roundEndPause
		r.out.Emit(room.Event{Type: "reaction_round_win", Body: pointBody{RoomID: r.id, UserID: uid, Score: r.scoreView()}})
		r.checkEnd()
	}
}

func (r *Room) nextRound() {
	r.round++
	r.phase = PhaseWait
	r.phaseTimer = minWait + r.rng.Float64()*(maxWait-minWait)
	r.out.Emit(room.Event{Type: "reaction_round_start", Body: roundBody{RoomID: r.id, Round: r.round}})
}

func (r *Room) checkEnd() {
	need := BestOf/2 + 1
	for _, pts := range r.score {
		if pts >= need {
			r.finish("score")
			return
		}
	}
	if r.round >= BestOf && r.phase == PhaseRoundEnd {
		r.finish("round_limit")
	}
}

func (r *Room) Tick(dt float64) {
	if r.state != room.StateRunning {
		return
	}
	r.snapAccum += dt
	r.phaseTimer -= dt
	switch {
	case r.phase == PhaseWait && r.phaseTimer <= 0:
		r.phase, r.phaseTimer = PhaseGo, goWindow
		r.out.Emit(room.Event{Type: "reaction_go", Body: roundBody{RoomID: r.id, Round: r.round}})
	case r.phase == PhaseGo && r.phaseTimer <= 0:
		r.phase, r.phaseTimer = PhaseRoundEnd, roundEndPause
		r.out.Emit(room.Event{Type: "reaction_timeout", Body: roundBody{RoomID: r.id, Round: r.round}})
	case r.phase == PhaseRoundEnd && r.phaseTimer <= 0:
		r.checkEnd()
		if r.state == room.StateRunning {
			r.nextRound()
		}
	}
	if r.snapAccum >= snapshotInterval {
		r.snapAccum = 0
		r.out.Emit(r.Snapshot())
	}
}

func (r *Room) ForceEnd(reason string) bool {
	if r.state != room.StateRunning {
		return false
	}
	r.finish(reason)
	return true
}

// finish records a result only for a full table with a decisive score.
func (r *Room) finish(reason string) {
	if r.state == room.StateEnded {
		return
	}
	r.state = room.StateEnded
	if players := r.roster.Players(); len(players) == 2 {
		a, b := players[0], players[1]
		if r.score[a] != r.score[b] {
			winner, loser := a, b
			if r.score[b] > r.score[a] {
				winner, loser = b, a
			}
			r.recorder.RecordResult(winner, room.Result{Win: true})
			r.recorder.RecordResult(loser, room.Result{Win: false})
		}
	}
	r.out.Emit(room.Event{
		Type:  "reaction_end",
		Body:  endBody{RoomID: r.id, Reason: reason, Score: r.scoreView()},
		Lobby: true,
	})
}

func (r *Room) scoreView() map[int64]int { return maps.Clone(r.score) }

type roundBody struct {
	RoomID string `json:"room_id"`
	Round  int    `json:"round"`
}

type pointBody struct {
	RoomID string        `json:"room_id"`
	UserID int64         `json:"user_id"`
	Score  map[int64]int `json:"score"`
}

type endBody struct {
	RoomID string        `json:"room_id"`
	Reason string        `json:"reason"`
	Score  map[int64]int `json:"score"`
}

type stateBody struct {
	RoomID     string        `json:"room_id"`
	State      room.State    `json:"state"`
	Phase      Phase         `json:"phase"`
	PhaseTimer float64       `json:"phase_timer"`
	Round      int           `json:"round"`
	Players    []int64       `json:"players"`
	Score      map[int64]int `json:"score"`
}

type rosterBody struct {
	RoomID     string  `json:"room_id"`
	Players    []int64 `json:"players"`
	Spectators []int64 `json:"spectators"`
}

func (r *Room) Snapshot() room.Event {
	return room.Event{Type: "reaction_state", Body: stateBody{
		RoomID:     r.id,
		State:      r.state,
		Phase:      r.phase,
		PhaseTimer: math.Round(max(r.phaseTimer, 0)*100) / 100,
		Round:      r.round,
		Players:    r.roster.Players(),
		Score:      r.scoreView(),
	}}
}

func (r *Room) emitRoster() {
	r.out.Emit(room.Event{
		Type:  "reaction_roster",
		Body:  rosterBody{RoomID: r.id, Players: r.roster.Players(), Spectators: r.roster.Spectators()},
		Lobby: true,
	})
}

func (r *Room) Info() room.Info {
	players := r.roster.Players()
	return room.Info{
		Key:            protocol.RoomKey(string(room.KindReaction), r.id),
		ID:             r.id,
		Kind:           room.KindReaction,
		State:          r.state,
		Players:        players,
		PlayerCount:    len(players),
		SpectatorCount: len(r.roster.Spectators()),
	}
}
