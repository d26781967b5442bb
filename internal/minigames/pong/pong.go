// Package pong is a two-seat pong room: first to five or the most points
// when the clock runs out.
package pong

import (
	"math"
	"math/rand/v2"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
)

const (
	Width        = 800.0
	Height       = 450.0
	PaddleHeight = 90.0
	PaddleSpeed  = 330.0
	WinScore     = 5
	MatchSeconds = 60.0

	paddleX      = 30.0
	wallPad      = 8.0
	speedUp      = 1.03
	spinFactor   = 2.4
	serveSpeed   = 260.0
	snapshotRate = 20.0
)

type paddleInput struct {
	Up   bool `json:"up"`
	Down bool `json:"down"`
}

type Room struct {
	id       string
	rng      *rand.Rand
	recorder room.ResultRecorder
	roster   room.Roster
	out      room.Outbox

	state        room.State
	inputs       map[int64]paddleInput
	ballX, ballY float64
	ballVX       float64
	ballVY       float64
	leftY        float64
	rightY       float64
	score        [2]int
	timeLeft     float64
	tick         uint64
	snapAccum    float64
	finalized    bool
	result       *matchResult
}

type matchResult struct {
	WinnerUserID int64 `json:"winner_user_id"`
	LoserUserID  int64 `json:"loser_user_id"`
}

var _ room.Room = (*Room)(nil)

func New(id string, p room.Params, rng *rand.Rand) *Room {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r := &Room{
		id:       id,
		rng:      rng,
		recorder: p.Recorder,
		roster:   room.NewRoster(2),
		inputs:   make(map[int64]paddleInput),
	}
	if r.recorder == nil {
		r.recorder = room.RecorderFunc(func(int64, room.Result) {})
	}
	r.reset()
	return r
}

func Factory(id string, p room.Params) room.Room { return New(id, p, nil) }

func (r *Room) reset() {
	r.state = room.StateWaiting
	r.ballX, r.ballY = Width/2, Height/2
	r.ballVX = serveSpeed
	if r.rng.IntN(2) == 0 {
		r.ballVX = -serveSpeed
	}
	r.ballVY = -160 + r.rng.Float64()*320
	r.leftY, r.rightY = Height/2, Height/2
	r.score = [2]int{}
	r.timeLeft = MatchSeconds
	r.tick = 0
	r.snapAccum = 0
	r.finalized = false
	r.result = nil
	clear(r.inputs)
}

func (r *Room) Kind() room.Kind           { return room.KindPong }
func (r *Room) ID() string                { return r.id }
func (r *Room) State() room.State         { return r.state }
func (r *Room) Score() [2]int             { return r.score }
func (r *Room) Members() []int64          { return r.roster.Members() }
func (r *Room) HasMember(uid int64) bool  { return r.roster.HasMember(uid) }
func (r *Room) DrainEvents() []room.Event { return r.out.Drain() }
func (r *Room) ForceStart() bool          { return false }

func (r *Room) Join(u room.Identity) room.JoinResult {
	role := r.roster.Add(u.ID)
	res := room.JoinResult{Role: role}
	if role == room.RolePlayer {
		res.Seat = [...]string{"left", "right"}[r.roster.PlayerIndex(u.ID)]
	}
	if r.roster.PlayerCount() == 2 && r.state == room.StateWaiting {
		r.state = room.StateRunning
	}
	r.emitRoster()
	res.State = r.state
	return res
}

// Leave forfeits a seated player's match: the opponent is credited the
// winning score before the room ends.
func (r *Room) Leave(uid int64) {
	idx := r.roster.PlayerIndex(uid)
	delete(r.inputs, uid)
	if idx >= 0 && r.state == room.StateRunning {
		r.score[1-idx] = max(r.score[1-idx], WinScore)
		r.finish("player_left")
	}
	r.roster.Remove(uid)
	r.emitRoster()
}

func (r *Room) Handle(uid int64, msg protocol.Envelope) {
	switch msg.Type {
	case "pong_input":
		var in paddleInput
		if msg.Decode(&in) != nil || !r.roster.IsPlayer(uid) {
			return
		}
		r.inputs[uid] = in
	case "pong_restart":
		if r.state != room.StateEnded {
			return
		}
		r.reset()
		if r.roster.PlayerCount() == 2 {
			r.state = room.StateRunning
		}
		r.emitRoster()
	default:
		r.out.Emit(room.Event{Type: "error", To: uid, Body: protocol.Error{Error: protocol.CodeUnknownMessageType, Got: msg.Type}})
	}
}

func (r *Room) ForceEnd(reason string) bool {
	if r.state != room.StateRunning {
		return false
	}
	r.finish(reason)
	return true
}

func (r *Room) movePaddle(y float64, in paddleInput, dt float64) float64 {
	if in.Up {
		y -= PaddleSpeed * dt
	}
	if in.Down {
		y += PaddleSpeed * dt
	}
	return max(PaddleHeight/2, min(Height-PaddleHeight/2, y))
}

func (r *Room) Tick(dt float64) {
	if r.state != room.StateRunning {
		return
	}
	r.tick++
	r.timeLeft = max(0, r.timeLeft-dt)

	players := r.roster.Players()
	if len(players) > 0 {
		r.leftY = r.movePaddle(r.leftY, r.inputs[players[0]], dt)
	}
	if len(players) > 1 {
		r.rightY = r.movePaddle(r.rightY, r.inputs[players[1]], dt)
	}

	r.ballX += r.ballVX * dt
	r.ballY += r.ballVY * dt
	if r.ballY <= wallPad || r.ballY >= Height-wallPad {
		r.ballVY = -r.ballVY
		r.ballY = max(wallPad, min(Height-wallPad, r.ballY))
	}

	switch {
	case r.ballX <= paddleX && math.Abs(r.ballY-r.leftY) <= PaddleHeight/2:
		r.ballX = paddleX
		r.ballVX = math.Abs(r.ballVX) * speedUp
		r.ballVY += (r.ballY - r.leftY) * spinFactor
	case r.ballX >= Width-paddleX && math.Abs(r.ballY-r.rightY) <= PaddleHeight/2:
		r.ballX = Width - paddleX
		r.ballVX = -math.Abs(r.ballVX) * speedUp
		r.ballVY += (r.ballY - r.rightY) * spinFactor
	}

	switch {
	case r.ballX < 0:
		r.score[1]++
		r.serve(1)
	case r.ballX > Width:
		r.score[0]++
		r.serve(-1)
	}

	if r.score[0] >= WinScore || r.score[1] >= WinScore || r.timeLeft <= 0 {
		r.finish("score_or_time")
	}

	r.snapAccum += dt
	if r.snapAccum >= 1/snapshotRate {
		r.snapAccum = 0
		r.out.Emit(r.Snapshot())
	}
}

func (r *Room) serve(dir float64) {
	r.ballX, r.ballY = Width/2, Height/2
	r.ballVX = dir * (240 + r.rng.Float64()*80)
	r.ballVY = -180 + r.rng.Float64()*360
}

// finish concludes the match once; a draw records nothing.
func (r *Room) finish(reason string) {
	if r.state == room.StateEnded {
		return
	}
	r.state = room.StateEnded
	players := r.roster.Players()
	if !r.finalized && len(players) == 2 && r.score[0] != r.score[1] {
		w := 0
		if r.score[1] > r.score[0] {
			w = 1
		}
		r.result = &matchResult{WinnerUserID: players[w], LoserUserID: players[1-w]}
		r.recorder.RecordResult(players[w], room.Result{Win: true})
		r.recorder.RecordResult(players[1-w], room.Result{Win: false})
	}
	r.finalized = true
	r.out.Emit(room.Event{
		Type:  "pong_end",
		Body:  endBody{RoomID: r.id, Reason: reason, Score: r.score, Result: r.result},
		Lobby: true,
	})
}

type endBody struct {
	RoomID string       `json:"room_id"`
	Reason string       `json:"reason"`
	Score  [2]int       `json:"score"`
	Result *matchResult `json:"result"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type paddles struct {
	LeftY  float64 `json:"left_y"`
	RightY float64 `json:"right_y"`
}

type stateBody struct {
	RoomID   string     `json:"room_id"`
	State    room.State `json:"state"`
	Players  []int64    `json:"players"`
	Score    [2]int     `json:"score"`
	Ball     point      `json:"ball"`
	Paddles  paddles    `json:"paddles"`
	TimeLeft float64    `json:"time_left"`
	Tick     uint64     `json:"tick"`
	Width    float64    `json:"width"`
	Height   float64    `json:"height"`
}

func (r *Room) Snapshot() room.Event {
	return room.Event{Type: "pong_state", Body: stateBody{
		RoomID:   r.id,
		State:    r.state,
		Players:  r.roster.Players(),
		Score:    r.score,
		Ball:     point{X: round2(r.ballX), Y: round2(r.ballY)},
		Paddles:  paddles{LeftY: round2(r.leftY), RightY: round2(r.rightY)},
		TimeLeft: round2(r.timeLeft),
		Tick:     r.tick,
		Width:    Width,
		Height:   Height,
	}}
}

type rosterBody struct {
	RoomID     string  `json:"room_id"`
	Players    []int64 `json:"players"`
	Spectators []int64 `json:"spectators"`
}

func (r *Room) emitRoster() {
	r.out.Emit(room.Event{
		Type:  "pong_roster",
		Body:  rosterBody{RoomID: r.id, Players: r.roster.Players(), Spectators: r.roster.Spectators()},
		Lobby: true,
	})
}

func (r *Room) Info() room.Info {
	players := r.roster.Players()
	tl := round2(r.timeLeft)
	return room.Info{
		Key:            protocol.RoomKey(string(room.KindPong), r.id),
		ID:             r.id,
		Kind:           room.KindPong,
		State:          r.state,
		Players:        players,
		PlayerCount:    len(players),
		SpectatorCount: len(r.roster.Spectators()),
		TimeLeft:       &tl,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
