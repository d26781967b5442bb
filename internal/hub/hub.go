// Package hub owns every session, user, room and queue in the process. A
// single goroutine (Run) mutates that state: connection goroutines and the
// console talk to it only by posting messages to its inbox.
package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/arcade-server/internal/lobby"
	"github.com/DoyleJ11/arcade-server/internal/matchmaking"
	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
)

var (
	ErrClosed       = errors.New("hub closed")
	ErrMissingToken = errors.New("missing token")
)

type Msg interface{ isHubMsg() }

// Connect registers a new transport session. The hub takes ownership of Out
// and closes it when the session is dropped.
type Connect struct {
	SessionID string
	Out       chan []byte
}

// Bind carries the outcome of a handshake resolved off the hub goroutine.
type Bind struct {
	SessionID string
	User      store.User
	Stats     store.Stats
	Err       error
}

type Inbound struct {
	SessionID string
	Env       protocol.Envelope
}

// BadFrame reports a frame that did not decode as an envelope.
type BadFrame struct {
	SessionID string
}

type Disconnect struct {
	SessionID string
}

// AdminRequest runs an admin command on behalf of the operator console.
type AdminRequest struct {
	Cmd   AdminCommand
	Reply chan AdminResult
}

type ListRooms struct {
	Reply chan []room.Info
}

type ListUsers struct {
	Reply chan []lobby.OnlineUser
}

func (Connect) isHubMsg()      {}
func (Bind) isHubMsg()         {}
func (Inbound) isHubMsg()      {}
func (BadFrame) isHubMsg()     {}
func (Disconnect) isHubMsg()   {}
func (AdminRequest) isHubMsg() {}
func (ListRooms) isHubMsg()    {}
func (ListUsers) isHubMsg()    {}

// JobSink receives persistence writes. It must not block.
type JobSink interface {
	Submit(store.Job)
}

type Config struct {
	TickRate      int
	MaxDT         float64
	LobbyInterval time.Duration
	BossEnabled   bool
}

type Hub struct {
	cfg      Config
	log      *zap.Logger
	registry *room.Registry
	jobs     JobSink
	now      func() time.Time

	inbox chan Msg
	done  chan struct{}

	sessions    map[string]*session
	users       map[int64]*user
	rooms       map[string]room.Room
	mm          *matchmaking.Matchmaker
	lobby       *lobby.Throttle
	bossEnabled bool
	mutes       map[int64]int64
	bans        map[int64]int64
	dropped     []string
}

func New(cfg Config, registry *room.Registry, jobs JobSink, log *zap.Logger) *Hub {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 60
	}
	if cfg.MaxDT <= 0 {
		cfg.MaxDT = 0.25
	}
	if cfg.LobbyInterval <= 0 {
		cfg.LobbyInterval = time.Second
	}
	return &Hub{
		cfg:         cfg,
		log:         log,
		registry:    registry,
		jobs:        jobs,
		now:         time.Now,
		inbox:       make(chan Msg, 256),
		done:        make(chan struct{}),
		sessions:    make(map[string]*session),
		users:       make(map[int64]*user),
		rooms:       make(map[string]room.Room),
		mm:          matchmaking.New(),
		lobby:       lobby.NewThrottle(cfg.LobbyInterval),
		bossEnabled: cfg.BossEnabled,
		mutes:       make(map[int64]int64),
		bans:        make(map[int64]int64),
	}
}

// Run is the scheduler loop. It returns once ctx is cancelled, after
// closing every session outbox.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.TickRate))
	defer ticker.Stop()

	h.log.Info("hub running", zap.Int("tick_rate", h.cfg.TickRate))
	last := h.now()
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case m := <-h.inbox:
			h.handle(m)
		case <-ticker.C:
			now := h.now()
			h.step(now.Sub(last).Seconds())
			last = now
		}
	}
}

// Post hands m to the hub goroutine.
func (h *Hub) Post(ctx context.Context, m Msg) error {
	select {
	case <-h.done:
		return ErrClosed
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ask[T any](ctx context.Context, h *Hub, m Msg, reply chan T) (T, error) {
	var zero T
	if err := h.Post(ctx, m); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) Admin(ctx context.Context, cmd AdminCommand) (AdminResult, error) {
	reply := make(chan AdminResult, 1)
	return ask(ctx, h, AdminRequest{Cmd: cmd, Reply: reply}, reply)
}

func (h *Hub) Rooms(ctx context.Context) ([]room.Info, error) {
	reply := make(chan []room.Info, 1)
	return ask(ctx, h, ListRooms{Reply: reply}, reply)
}

func (h *Hub) Users(ctx context.Context) ([]lobby.OnlineUser, error) {
	reply := make(chan []lobby.OnlineUser, 1)
	return ask(ctx, h, ListUsers{Reply: reply}, reply)
}

func (h *Hub) handle(m Msg) {
	switch msg := m.(type) {
	case Connect:
		h.connect(msg)
	case Bind:
		h.bind(msg)
	case Inbound:
		s := h.sessions[msg.SessionID]
		switch {
		case s == nil || s.closed:
		case s.userID == 0:
			h.sendError(s, protocol.Error{Error: protocol.CodeHelloFirst})
		default:
			h.route(s, msg.Env)
		}
	case BadFrame:
		if s := h.sessions[msg.SessionID]; s != nil {
			h.sendError(s, protocol.Error{Error: protocol.CodeBadJSON})
		}
	case Disconnect:
		h.disconnect(msg.SessionID)
	case AdminRequest:
		msg.Reply <- h.admin(msg.Cmd)
	case ListRooms:
		msg.Reply <- h.roomInfos()
	case ListUsers:
		msg.Reply <- h.onlineUsers()
	}
	h.reap()
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		h.closeSession(s)
		delete(h.sessions, id)
	}
	clear(h.users)
	clear(h.rooms)
	h.log.Info("hub stopped")
}
