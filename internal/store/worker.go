package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/arcade-server/internal/room"
)

// Job is one write the hub hands off so the tick loop never waits on I/O.
type Job interface{ isJob() }

type RecordResult struct {
	UserID int64
	Result room.Result
}

type SetMute struct {
	UserID int64
	Until  int64
}

type SetBan struct {
	UserID int64
	Until  int64
}

func (RecordResult) isJob() {}
func (SetMute) isJob()      {}
func (SetBan) isJob()       {}

// Worker serializes writes to a Store. Submit never blocks; Run drains
// whatever is queued when ctx is cancelled before returning.
type Worker struct {
	store Store
	log   *zap.Logger

	mu      sync.Mutex
	pending []Job
	wake    chan struct{}
}

func NewWorker(s Store, log *zap.Logger) *Worker {
	return &Worker{store: s, log: log, wake: make(chan struct{}, 1)}
}

func (w *Worker) Submit(j Job) {
	w.mu.Lock()
	w.pending = append(w.pending, j)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flush(flushCtx)
			cancel()
			return nil
		case <-w.wake:
			w.flush(ctx)
		}
	}
}

func (w *Worker) take() []Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	jobs := w.pending
	w.pending = nil
	return jobs
}

func (w *Worker) flush(ctx context.Context) {
	for _, j := range w.take() {
		if err := w.apply(ctx, j); err != nil {
			w.log.Error("store write failed", zap.Error(err))
		}
	}
}

func (w *Worker) apply(ctx context.Context, j Job) error {
	switch j := j.(type) {
	case RecordResult:
		_, err := w.store.RecordResult(ctx, j.UserID, j.Result)
		return err
	case SetMute:
		return w.store.SetMutedUntil(ctx, j.UserID, j.Until)
	case SetBan:
		return w.store.SetBannedUntil(ctx, j.UserID, j.Until)
	}
	return nil
}
