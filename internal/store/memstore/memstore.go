// Package memstore keeps every store table in process memory. It backs
// local play when no DATABASE_URL is configured, and the hub tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
)

type session struct {
	userID    int64
	expiresAt time.Time
}

type Store struct {
	mu         sync.RWMutex
	nextID     int64
	users      map[int64]store.User
	byUsername map[string]int64
	sessions   map[string]session
	stats      map[int64]store.Stats
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[int64]store.User),
		byUsername: make(map[string]int64),
		sessions:   make(map[string]session),
		stats:      make(map[int64]store.Stats),
	}
}

func (s *Store) CreateUser(_ context.Context, username, displayName, passwordHash string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := protocol.Fold(username)
	if _, ok := s.byUsername[key]; ok {
		return store.User{}, store.ErrDuplicateUsername
	}
	s.nextID++
	if displayName == "" {
		displayName = username
	}
	u := store.User{
		ID:           s.nextID,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	s.users[u.ID] = u
	s.byUsername[key] = u.ID
	s.stats[u.ID] = store.NewStats()
	return u, nil
}

func (s *Store) UserByID(_ context.Context, id int64) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (store.User, error) {
	s.mu.RLock()
	id, ok := s.byUsername[protocol.Fold(username)]
	s.mu.RUnlock()
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return s.UserByID(ctx, id)
}

func (s *Store) CountUsers(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) CreateSession(_ context.Context, token string, userID int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return store.ErrNotFound
	}
	s.sessions[token] = session{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *Store) UserBySession(ctx context.Context, token string, now time.Time) (store.User, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok || !sess.expiresAt.After(now) {
		return store.User{}, store.ErrNotFound
	}
	return s.UserByID(ctx, sess.userID)
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for tok, sess := range s.sessions {
		if !sess.expiresAt.After(now) {
			delete(s.sessions, tok)
			n++
		}
	}
	return n, nil
}

func (s *Store) StatsFor(_ context.Context, userID int64) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[userID]
	if !ok {
		return store.Stats{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) RecordResult(_ context.Context, userID int64, r room.Result) (store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[userID]
	if !ok {
		return store.Stats{}, store.ErrNotFound
	}
	st = st.Apply(r)
	s.stats[userID] = st
	return st, nil
}

func (s *Store) Leaderboard(_ context.Context, limit int) ([]store.Standing, error) {
	s.mu.RLock()
	rows := make([]store.Standing, 0, len(s.stats))
	for id, st := range s.stats {
		u := s.users[id]
		rows = append(rows, store.Standing{UserID: id, Username: u.Username, DisplayName: u.DisplayName, Stats: st})
	}
	s.mu.RUnlock()
	store.SortStandings(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) update(userID int64, fn func(*store.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	fn(&u)
	s.users[userID] = u
	return nil
}

func (s *Store) SetAdmin(_ context.Context, userID int64, admin bool) error {
	return s.update(userID, func(u *store.User) { u.IsAdmin = admin })
}

func (s *Store) SetMutedUntil(_ context.Context, userID, until int64) error {
	return s.update(userID, func(u *store.User) { u.MutedUntil = until })
}

func (s *Store) SetBannedUntil(_ context.Context, userID, until int64) error {
	return s.update(userID, func(u *store.User) { u.BannedUntil = until })
}

func (s *Store) Close() error { return nil }
