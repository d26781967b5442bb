// Package room defines the contract every game instance implements so the
// hub can schedule, route and tear it down without knowing its kind.
package room

import (
	"errors"
	"fmt"
	"sort"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
)

type Kind string

const (
	KindArena    Kind = "arena"
	KindChess    Kind = "chess"
	KindPong     Kind = "pong"
	KindReaction Kind = "reaction"
	KindTyping   Kind = "typing"
)

type State string

const (
	StateWaiting State = "waiting"
	StateRunning State = "running"
	StateEnded   State = "ended"
)

type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

var ErrUnknownKind = errors.New("unknown room kind")

// Identity is what a room learns about a joining user.
type Identity struct {
	ID          int64
	Username    string
	DisplayName string
}

func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}

// JoinResult is merged into the room_joined frame.
type JoinResult struct {
	Role     Role   `json:"role"`
	Seat     string `json:"seat,omitempty"`
	State    State  `json:"state"`
	ModeName string `json:"mode_name,omitempty"`
}

// Event is one outbound message. To, when non-zero, redirects it to a
// single user instead of every member. Lobby marks events that change what
// the lobby view shows.
type Event struct {
	Type  string
	To    int64
	Body  any
	Lobby bool
}

// Result is the per-user outcome of one concluded match.
type Result struct {
	Win    bool
	KOs    int
	Deaths int
}

// ResultRecorder receives match results. Rooms call it at most once per
// participant per conclusion.
type ResultRecorder interface {
	RecordResult(userID int64, r Result)
}

type RecorderFunc func(userID int64, r Result)

func (f RecorderFunc) RecordResult(userID int64, r Result) { f(userID, r) }

// Info is a room's entry in the lobby view.
type Info struct {
	Key            string           `json:"room_key"`
	ID             string           `json:"room_id"`
	Kind           Kind             `json:"kind"`
	State          State            `json:"state"`
	Players        []int64          `json:"players"`
	Seats          map[string]int64 `json:"seats,omitempty"`
	PlayerCount    int              `json:"player_count"`
	SpectatorCount int              `json:"spectator_count"`
	ModeName       string           `json:"mode_name,omitempty"`
	TimeLeft       *float64         `json:"time_left,omitempty"`
}

type Room interface {
	Kind() Kind
	ID() string
	Join(u Identity) JoinResult
	Leave(userID int64)
	Handle(userID int64, msg protocol.Envelope)
	Tick(dt float64)
	Snapshot() Event
	DrainEvents() []Event
	Members() []int64
	HasMember(userID int64) bool
	Info() Info
	// ForceStart reports false when the kind has no start step.
	ForceStart() bool
	ForceEnd(reason string) bool
}

// Params configure a new room. Mode and MatchSeconds only matter to kinds
// that read them.
type Params struct {
	Mode         string
	MatchSeconds int
	Recorder     ResultRecorder
}

type Factory func(id string, p Params) Room

// Registry maps kinds to constructors.
type Registry struct {
	factories map[Kind]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

func (r *Registry) Register(kind Kind, f Factory) {
	r.factories[kind] = f
}

func (r *Registry) Has(kind Kind) bool {
	_, ok := r.factories[kind]
	return ok
}

func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) New(kind Kind, id string, p Params) (Room, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f(id, p), nil
}
