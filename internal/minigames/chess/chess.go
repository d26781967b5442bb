// Package chess seats two players at a clocked game. Move legality and
// game-end detection come from github.com/notnil/chess.
package chess

import (
	"math"
	"slices"
	"strings"

	"github.com/notnil/chess"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
)

const (
	White = "w"
	Black = "b"

	ClockMillis      = int64(5 * 60 * 1000)
	snapshotInterval = 0.25
	moveLogLimit     = 120
)

const (
	StatusOngoing   = "ongoing"
	StatusCheckmate = "checkmate"
	StatusStalemate = "stalemate"
	StatusResign    = "resign"
	StatusDraw      = "draw"
	StatusTimeout   = "timeout"
)

var promotions = map[string]chess.PieceType{
	"q": chess.Queen,
	"r": chess.Rook,
	"b": chess.Bishop,
	"n": chess.Knight,
}

type Room struct {
	id       string
	recorder room.ResultRecorder
	out      room.Outbox

	members   map[int64]bool
	seats     map[string]int64
	state     room.State
	game      *chess.Game
	clocks    map[string]int64
	drawOffer string
	status    string
	winner    string
	applied   bool
	snapAccum float64
}

var _ room.Room = (*Room)(nil)

func New(id string, p room.Params) *Room {
	r := &Room{
		id:       id,
		recorder: p.Recorder,
		members:  make(map[int64]bool),
		seats:    map[string]int64{White: 0, Black: 0},
	}
	if r.recorder == nil {
		r.recorder = room.RecorderFunc(func(int64, room.Result) {})
	}
	r.reset()
	return r
}

func Factory(id string, p room.Params) room.Room { return New(id, p) }

func (r *Room) reset() {
	r.state = room.StateWaiting
	r.game = chess.NewGame(chess.UseNotation(chess.UCINotation{}))
	r.clocks = map[string]int64{White: ClockMillis, Black: ClockMillis}
	r.drawOffer = ""
	r.status = StatusOngoing
	r.winner = ""
	r.applied = false
	r.snapAccum = 0
}

func (r *Room) Kind() room.Kind           { return room.KindChess }
func (r *Room) ID() string                { return r.id }
func (r *Room) State() room.State         { return r.state }
func (r *Room) Status() string            { return r.status }
func (r *Room) Winner() string            { return r.winner }
func (r *Room) FEN() string               { return r.game.FEN() }
func (r *Room) Clock(side string) int64   { return r.clocks[side] }
func (r *Room) HasMember(uid int64) bool  { return r.members[uid] }
func (r *Room) DrainEvents() []room.Event { return r.out.Drain() }
func (r *Room) ForceStart() bool          { return false }

func (r *Room) Members() []int64 {
	out := make([]int64, 0, len(r.members))
	for uid := range r.members {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

func (r *Room) spectators() []int64 {
	var out []int64
	for _, uid := range r.Members() {
		if r.sideOf(uid) == "" {
			out = append(out, uid)
		}
	}
	return out
}

func (r *Room) sideOf(uid int64) string {
	switch {
	case uid == 0:
		return ""
	case r.seats[White] == uid:
		return White
	case r.seats[Black] == uid:
		return Black
	}
	return ""
}

func (r *Room) turn() string { return r.game.Position().Turn().String() }

func (r *Room) Join(u room.Identity) room.JoinResult {
	r.members[u.ID] = true
	res := room.JoinResult{Role: room.RolePlayer, Seat: r.sideOf(u.ID)}
	switch {
	case res.Seat != "":
	case r.seats[White] == 0:
		r.seats[White], res.Seat = u.ID, White
	case r.seats[Black] == 0:
		r.seats[Black], res.Seat = u.ID, Black
	default:
		res.Role = room.RoleSpectator
	}
	if r.seats[White] != 0 && r.seats[Black] != 0 && r.state == room.StateWaiting {
		r.state = room.StateRunning
	}
	r.emitRoster()
	res.State = r.state
	return res
}

// Leave resigns on behalf of a seated player who walks out mid-game.
func (r *Room) Leave(uid int64) {
	side := r.sideOf(uid)
	delete(r.members, uid)
	if side != "" {
		if r.state == room.StateRunning {
			r.game.Resign(colorOf(side))
			r.conclude(StatusResign, opposite(side), "player_left")
		}
		r.seats[side] = 0
	}
	r.emitRoster()
}

type moveBody struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion"`
}

func (r *Room) Handle(uid int64, msg protocol.Envelope) {
	side := r.sideOf(uid)
	switch msg.Type {
	case "chess_move":
		var body moveBody
		if msg.Decode(&body) != nil || r.state != room.StateRunning || side == "" || side != r.turn() {
			return
		}
		r.move(uid, body)
	case "chess_resign":
		if side == "" || r.state != room.StateRunning {
			return
		}
		r.game.Resign(colorOf(side))
		r.conclude(StatusResign, opposite(side), "")
	case "chess_offer_draw":
		if side == "" || r.state != room.StateRunning || r.drawOffer == side {
			return
		}
		r.drawOffer = side
		r.out.Emit(room.Event{Type: "chess_draw_offer", Body: drawOfferBody{RoomID: r.id, From: side}})
	case "chess_accept_draw":
		if side == "" || r.state != room.StateRunning || r.drawOffer == "" || r.drawOffer == side {
			return
		}
		if err := r.game.Draw(chess.DrawOffer); err != nil {
			return
		}
		r.conclude(StatusDraw, "", "agreed")
	case "chess_restart":
		if r.state != room.StateEnded {
			return
		}
		r.reset()
		if r.seats[White] != 0 && r.seats[Black] != 0 {
			r.state = room.StateRunning
		}
		r.emitRoster()
	default:
		r.out.Emit(room.Event{Type: "error", To: uid, Body: protocol.Error{Error: protocol.CodeUnknownMessageType, Got: msg.Type}})
	}
}

func (r *Room) move(uid int64, body moveBody) {
	from := strings.ToLower(strings.TrimSpace(body.From))
	to := strings.ToLower(strings.TrimSpace(body.To))
	promo, ok := promotions[strings.ToLower(body.Promotion)]
	if !ok {
		promo = chess.Queen
	}

	var picked *chess.Move
	for _, m := range r.game.ValidMoves() {
		if m.S1().String() != from || m.S2().String() != to {
			continue
		}
		if m.Promo() != chess.NoPieceType && m.Promo() != promo {
			continue
		}
		picked = m
		break
	}
	if picked == nil {
		r.out.Emit(room.Event{Type: "chess_move_reject", To: uid, Body: rejectBody{RoomID: r.id, Reason: "illegal_move"}})
		return
	}
	if err := r.game.Move(picked); err != nil {
		r.out.Emit(room.Event{Type: "chess_move_reject", To: uid, Body: rejectBody{RoomID: r.id, Reason: err.Error()}})
		return
	}
	r.drawOffer = ""

	status, winner := r.outcome()
	r.out.Emit(room.Event{Type: "chess_move_ok", Body: moveOKBody{
		RoomID: r.id,
		UCI:    picked.String(),
		FEN:    r.game.FEN(),
		Status: status,
	}})
	if status != StatusOngoing {
		r.conclude(status, winner, "")
	}
}

// outcome maps the library's outcome and method onto the room's statuses.
func (r *Room) outcome() (status, winner string) {
	switch r.game.Outcome() {
	case chess.NoOutcome:
		return StatusOngoing, ""
	case chess.WhiteWon:
		winner = White
	case chess.BlackWon:
		winner = Black
	}
	switch r.game.Method() {
	case chess.Checkmate:
		return StatusCheckmate, winner
	case chess.Stalemate:
		return StatusStalemate, ""
	case chess.Resignation:
		return StatusResign, winner
	}
	return StatusDraw, winner
}

func (r *Room) Tick(dt float64) {
	r.snapAccum += dt
	if r.state == room.StateRunning {
		side := r.turn()
		r.clocks[side] = max(0, r.clocks[side]-int64(math.Round(dt*1000)))
		if r.clocks[side] == 0 {
			r.conclude(StatusTimeout, opposite(side), "")
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
	r.conclude(StatusDraw, "", reason)
	return true
}

// conclude ends the game and applies the result at most once. Draws and
// half-empty tables record nothing.
func (r *Room) conclude(status, winner, reason string) {
	if r.state == room.StateEnded {
		return
	}
	r.state = room.StateEnded
	r.status = status
	r.winner = winner
	r.drawOffer = ""
	if !r.applied && winner != "" && r.seats[White] != 0 && r.seats[Black] != 0 {
		r.recorder.RecordResult(r.seats[winner], room.Result{Win: true})
		r.recorder.RecordResult(r.seats[opposite(winner)], room.Result{Win: false})
	}
	r.applied = true
	r.out.Emit(room.Event{
		Type:  "chess_end",
		Body:  endBody{RoomID: r.id, Status: status, Winner: winner, Reason: reason},
		Lobby: true,
	})
}

func colorOf(side string) chess.Color {
	if side == Black {
		return chess.Black
	}
	return chess.White
}

func opposite(side string) string {
	if side == White {
		return Black
	}
	return White
}

type seatsBody struct {
	W *int64 `json:"w"`
	B *int64 `json:"b"`
}

func (r *Room) seatsView() seatsBody {
	var out seatsBody
	if uid := r.seats[White]; uid != 0 {
		out.W = &uid
	}
	if uid := r.seats[Black]; uid != 0 {
		out.B = &uid
	}
	return out
}

type rosterBody struct {
	RoomID     string    `json:"room_id"`
	Players    seatsBody `json:"players"`
	Spectators []int64   `json:"spectators"`
}

type moveOKBody struct {
	RoomID string `json:"room_id"`
	UCI    string `json:"uci"`
	FEN    string `json:"fen"`
	Status string `json:"status"`
}

type rejectBody struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

type drawOfferBody struct {
	RoomID string `json:"room_id"`
	From   string `json:"from"`
}

type endBody struct {
	RoomID string `json:"room_id"`
	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type stateBody struct {
	RoomID        string           `json:"room_id"`
	State         room.State       `json:"state"`
	Players       seatsBody        `json:"players"`
	Spectators    []int64          `json:"spectators"`
	Turn          string           `json:"turn"`
	Status        string           `json:"status"`
	Winner        string           `json:"winner,omitempty"`
	FEN           string           `json:"fen"`
	Moves         []string         `json:"moves"`
	ClocksMillis  map[string]int64 `json:"clocks_ms"`
	DrawOfferFrom string           `json:"draw_offer_from,omitempty"`
}

func (r *Room) Snapshot() room.Event {
	moves := r.game.Moves()
	if len(moves) > moveLogLimit {
		moves = moves[len(moves)-moveLogLimit:]
	}
	log := make([]string, len(moves))
	for i, m := range moves {
		log[i] = m.String()
	}
	return room.Event{Type: "chess_state", Body: stateBody{
		RoomID:        r.id,
		State:         r.state,
		Players:       r.seatsView(),
		Spectators:    r.spectators(),
		Turn:          r.turn(),
		Status:        r.status,
		Winner:        r.winner,
		FEN:           r.game.FEN(),
		Moves:         log,
		ClocksMillis:  map[string]int64{White: r.clocks[White], Black: r.clocks[Black]},
		DrawOfferFrom: r.drawOffer,
	}}
}

func (r *Room) emitRoster() {
	r.out.Emit(room.Event{
		Type:  "chess_roster",
		Body:  rosterBody{RoomID: r.id, Players: r.seatsView(), Spectators: r.spectators()},
		Lobby: true,
	})
}

func (r *Room) Info() room.Info {
	seats := make(map[string]int64, 2)
	var players []int64
	for _, side := range []string{White, Black} {
		if uid := r.seats[side]; uid != 0 {
			seats[side] = uid
			players = append(players, uid)
		}
	}
	return room.Info{
		Key:            protocol.RoomKey(string(room.KindChess), r.id),
		ID:             r.id,
		Kind:           room.KindChess,
		State:          r.state,
		Players:        players,
		Seats:          seats,
		PlayerCount:    len(players),
		SpectatorCount: len(r.spectators()),
	}
}
