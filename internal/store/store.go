// Package store is the persistence boundary: accounts, session tokens,
// match stats and moderation timestamps. Room code never calls it directly;
// results reach it through the hub's Worker.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/DoyleJ11/arcade-server/internal/room"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateUsername = errors.New("username already taken")
)

const (
	DefaultCortisol = 1000
	MinCortisol     = 0
	MaxCortisol     = 5000
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	IsAdmin      bool      `json:"is_admin"`
	PasswordHash string    `json:"-"`
	MutedUntil   int64     `json:"muted_until"`
	BannedUntil  int64     `json:"banned_until"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) Identity() room.Identity {
	return room.Identity{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}

func (u User) MutedAt(now time.Time) bool  { return u.MutedUntil > now.Unix() }
func (u User) BannedAt(now time.Time) bool { return u.BannedUntil > now.Unix() }

type Stats struct {
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	KOs      int    `json:"kos"`
	Deaths   int    `json:"deaths"`
	Streak   int    `json:"streak"`
	Cortisol int    `json:"cortisol"`
	Tier     string `json:"tier"`
}

func NewStats() Stats {
	return Stats{Cortisol: DefaultCortisol, Tier: Tier(DefaultCortisol)}
}

// Apply folds one match result into s. A win lowers cortisol by an amount
// that grows with the current streak; a loss raises it and resets the streak.
func (s Stats) Apply(r room.Result) Stats {
	s.KOs += r.KOs
	s.Deaths += r.Deaths
	if r.Win {
		s.Wins++
		s.Cortisol -= 25 + 5*s.Streak
		s.Streak++
	} else {
		s.Losses++
		s.Cortisol += 20
		s.Streak = 0
	}
	s.Cortisol = max(MinCortisol, min(MaxCortisol, s.Cortisol))
	s.Tier = Tier(s.Cortisol)
	return s
}

func Tier(cortisol int) string {
	switch {
	case cortisol <= 300:
		return "Zen"
	case cortisol <= 700:
		return "Calm"
	case cortisol <= 1200:
		return "Stable"
	}
	return "Cooked"
}

// SortStandings orders a leaderboard: calmest first, then most wins, then
// by username.
func SortStandings(rows []Standing) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Cortisol != b.Cortisol {
			return a.Cortisol < b.Cortisol
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		return a.Username < b.Username
	})
}

type Standing struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Stats
}

type Store interface {
	CreateUser(ctx context.Context, username, displayName, passwordHash string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	CountUsers(ctx context.Context) (int64, error)

	CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	UserBySession(ctx context.Context, token string, now time.Time) (User, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	StatsFor(ctx context.Context, userID int64) (Stats, error)
	RecordResult(ctx context.Context, userID int64, r room.Result) (Stats, error)
	Leaderboard(ctx context.Context, limit int) ([]Standing, error)

	SetAdmin(ctx context.Context, userID int64, admin bool) error
	SetMutedUntil(ctx context.Context, userID, until int64) error
	SetBannedUntil(ctx context.Context, userID, until int64) error

	Close() error
}
