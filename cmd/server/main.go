package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/arcade-server/internal/admin"
	"github.com/DoyleJ11/arcade-server/internal/arena"
	"github.com/DoyleJ11/arcade-server/internal/auth"
	"github.com/DoyleJ11/arcade-server/internal/config"
	"github.com/DoyleJ11/arcade-server/internal/httpapi"
	"github.com/DoyleJ11/arcade-server/internal/hub"
	"github.com/DoyleJ11/arcade-server/internal/minigames/chess"
	"github.com/DoyleJ11/arcade-server/internal/minigames/pong"
	"github.com/DoyleJ11/arcade-server/internal/minigames/reaction"
	"github.com/DoyleJ11/arcade-server/internal/minigames/typing"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
	"github.com/DoyleJ11/arcade-server/internal/store/memstore"
	"github.com/DoyleJ11/arcade-server/internal/store/pgstore"
	"github.com/DoyleJ11/arcade-server/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	catalog := arena.DefaultCatalog()
	if cfg.CharactersFile != "" {
		if catalog, err = arena.LoadCatalog(cfg.CharactersFile); err != nil {
			return err
		}
	}

	registry := room.NewRegistry()
	registry.Register(room.KindArena, arena.NewFactory(catalog))
	registry.Register(room.KindChess, chess.Factory)
	registry.Register(room.KindPong, pong.Factory)
	registry.Register(room.KindReaction, reaction.Factory)
	registry.Register(room.KindTyping, typing.Factory)

	accounts := auth.NewService(st,
		auth.WithTTL(cfg.SessionTTL),
		auth.WithBootstrapSecret(cfg.AdminBootstrapSecret),
	)
	worker := store.NewWorker(st, log.Named("persist"))
	h := hub.New(hub.Config{
		TickRate:      cfg.TickRate,
		MaxDT:         cfg.MaxDT,
		LobbyInterval: cfg.LobbyInterval,
		BossEnabled:   cfg.BossEnabled,
	}, registry, worker, log.Named("hub"))

	wsHandler := ws.Handler(h, accounts, st, ws.Config{
		OutboxSize:   cfg.OutboxSize,
		PingInterval: cfg.WSPingInterval,
	}, log.Named("ws"))
	api := httpapi.NewHandlers(accounts, st, h, log.Named("http"))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(api, wsHandler, log.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// The worker outlives the hub so results recorded during shutdown are
	// still flushed.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(workerCtx) }()

	g.Go(func() error {
		err := h.Run(ctx)
		stopWorker()
		return multierr.Append(err, <-workerDone)
	})
	g.Go(func() error { return accounts.RunCleanup(ctx, cfg.SessionCleanupInterval, log.Named("auth")) })
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("kinds", fmt.Sprint(registry.Kinds())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.AdminConsole {
		g.Go(func() error {
			return admin.New(h, st, os.Stdout, log.Named("console")).Run(ctx, os.Stdin)
		})
	}

	err = g.Wait()
	log.Info("server stopped", zap.Error(err))
	return err
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc.Level = level
	return zc.Build()
}

func openStore(cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return memstore.New(), nil
	}
	return pgstore.Open(cfg.DatabaseURL, log.Named("pgstore"))
}
