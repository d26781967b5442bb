// Package ws bridges WebSocket connections to the hub. Each connection gets
// a reader (this handler's goroutine) and a writer draining the outbox the
// hub owns.
package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arcade-server/internal/hub"
	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/store"
	"github.com/DoyleJ11/arcade-server/pkg/types"
)

const readLimit = 64 << 10

type Poster interface {
	Post(ctx context.Context, m hub.Msg) error
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (store.User, error)
}

type StatsSource interface {
	StatsFor(ctx context.Context, userID int64) (store.Stats, error)
}

// Config tunes a connection. Reads have no deadline: a client that answers
// pings stays connected however long it stays quiet.
type Config struct {
	OutboxSize     int
	PingInterval   time.Duration
	PingTimeout    time.Duration
	WriteTimeout   time.Duration
	OriginPatterns []string
}

func (c Config) withDefaults() Config {
	if c.OutboxSize <= 0 {
		c.OutboxSize = 64
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	return c
}

type handler struct {
	hub   Poster
	authn Authenticator
	stats StatsSource
	cfg   Config
	log   *zap.Logger
}

func Handler(h Poster, authn Authenticator, stats StatsSource, cfg Config, log *zap.Logger) http.HandlerFunc {
	hd := &handler{hub: h, authn: authn, stats: stats, cfg: cfg.withDefaults(), log: log}
	return hd.serve
}

func (hd *handler) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: hd.cfg.OriginPatterns})
	if err != nil {
		hd.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sid := uuid.NewString()
	log := hd.log.With(zap.String("session", sid))
	out := make(chan []byte, hd.cfg.OutboxSize)
	if err := hd.hub.Post(ctx, hub.Connect{SessionID: sid, Out: out}); err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer func() {
		if err := hd.hub.Post(context.Background(), hub.Disconnect{SessionID: sid}); err != nil {
			log.Debug("disconnect not delivered", zap.Error(err))
		}
	}()
	log.Debug("session connected", zap.String("remote", r.RemoteAddr))

	go hd.write(conn, out, log)
	go hd.heartbeat(ctx, conn, log)

	if token := requestToken(r); token != "" {
		if err := hd.hub.Post(ctx, hd.resolve(ctx, sid, token)); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("session closed by peer")
			default:
				log.Debug("session read ended", zap.Error(err))
			}
			return
		}

		var m hub.Msg
		env, err := protocol.DecodeEnvelope(data)
		switch {
		case err != nil:
			m = hub.BadFrame{SessionID: sid}
		case env.Type == "hello":
			var hello types.Hello
			if env.Decode(&hello) != nil {
				m = hub.BadFrame{SessionID: sid}
				break
			}
			m = hd.resolve(ctx, sid, strings.TrimSpace(hello.Token))
		default:
			m = hub.Inbound{SessionID: sid, Env: env}
		}
		if err := hd.hub.Post(ctx, m); err != nil {
			return
		}
	}
}

// write drains out until the hub closes it, then closes the connection.
func (hd *handler) write(conn *websocket.Conn, out <-chan []byte, log *zap.Logger) {
	var failed bool
	for frame := range out {
		if failed {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), hd.cfg.WriteTimeout)
		err := conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			log.Debug("session write failed", zap.Error(err))
			failed = true
			conn.CloseNow()
		}
	}
	conn.Close(websocket.StatusNormalClosure, "bye")
}

// heartbeat pings the peer until ctx is done. A missed pong closes the
// connection, which ends the read loop.
func (hd *handler) heartbeat(ctx context.Context, conn *websocket.Conn, log *zap.Logger) {
	t := time.NewTicker(hd.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		pctx, cancel := context.WithTimeout(ctx, hd.cfg.PingTimeout)
		err := conn.Ping(pctx)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				log.Debug("heartbeat missed", zap.Error(err))
				conn.CloseNow()
			}
			return
		}
	}
}

// resolve turns a token into a Bind off the hub goroutine, since it may hit
// the database.
func (hd *handler) resolve(ctx context.Context, sid, token string) hub.Bind {
	if token == "" {
		return hub.Bind{SessionID: sid, Err: hub.ErrMissingToken}
	}
	u, err := hd.authn.Authenticate(ctx, token)
	if err != nil {
		return hub.Bind{SessionID: sid, Err: err}
	}
	st, err := hd.stats.StatsFor(ctx, u.ID)
	if err != nil {
		hd.log.Warn("load stats", zap.Int64("user", u.ID), zap.Error(err))
		st = store.NewStats()
	}
	return hub.Bind{SessionID: sid, User: u, Stats: st}
}

func requestToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	if t, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}
