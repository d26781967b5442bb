// Package pgstore persists the store tables in Postgres through gorm.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
)

const uniqueViolation = "23505"

type userRow struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"not null"`
	UsernameKey  string `gorm:"uniqueIndex;not null"`
	DisplayName  string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	IsAdmin      bool   `gorm:"not null;default:false"`
	MutedUntil   int64  `gorm:"not null;default:0"`
	BannedUntil  int64  `gorm:"not null;default:0"`
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func (r userRow) user() store.User {
	return store.User{
		ID:           r.ID,
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		IsAdmin:      r.IsAdmin,
		PasswordHash: r.PasswordHash,
		MutedUntil:   r.MutedUntil,
		BannedUntil:  r.BannedUntil,
		CreatedAt:    r.CreatedAt,
	}
}

type sessionRow struct {
	Token     string `gorm:"primaryKey"`
	UserID    int64  `gorm:"index;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index;not null"`
}

func (sessionRow) TableName() string { return "sessions" }

type statsRow struct {
	UserID   int64 `gorm:"primaryKey"`
	Wins     int   `gorm:"not null;default:0"`
	Losses   int   `gorm:"not null;default:0"`
	KOs      int   `gorm:"column:kos;not null;default:0"`
	Deaths   int   `gorm:"not null;default:0"`
	Streak   int   `gorm:"not null;default:0"`
	Cortisol int   `gorm:"not null;default:1000"`
}

func (statsRow) TableName() string { return "stats" }

func (r statsRow) stats() store.Stats {
	return store.Stats{
		Wins:     r.Wins,
		Losses:   r.Losses,
		KOs:      r.KOs,
		Deaths:   r.Deaths,
		Streak:   r.Streak,
		Cortisol: r.Cortisol,
		Tier:     store.Tier(r.Cortisol),
	}
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects and migrates the schema.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.AutoMigrate(&userRow{}, &sessionRow{}, &statsRow{}); err != nil {
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	log.Info("postgres store ready")
	return &Store{db: db, log: log}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func usernameKey(username string) string { return protocol.Fold(username) }

func (s *Store) CreateUser(ctx context.Context, username, displayName, passwordHash string) (store.User, error) {
	if displayName == "" {
		displayName = username
	}
	row := userRow{
		Username:     username,
		UsernameKey:  usernameKey(username),
		DisplayName:  displayName,
		PasswordHash: passwordHash,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(&statsRow{UserID: row.ID, Cortisol: store.DefaultCortisol}).Error
	})
	if isUniqueViolation(err) {
		return store.User{}, store.ErrDuplicateUsername
	}
	if err != nil {
		return store.User{}, fmt.Errorf("pgstore: create user: %w", err)
	}
	return row.user(), nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (store.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return store.User{}, notFound(err)
	}
	return row.user(), nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (store.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("username_key = ?", usernameKey(username)).First(&row).Error
	if err != nil {
		return store.User{}, notFound(err)
	}
	return row.user(), nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&userRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("pgstore: count users: %w", err)
	}
	return n, nil
}

func (s *Store) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	row := sessionRow{Token: token, UserID: userID, ExpiresAt: expiresAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("pgstore: create session: %w", err)
	}
	return nil
}

func (s *Store) UserBySession(ctx context.Context, token string, now time.Time) (store.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).
		Joins("JOIN sessions ON sessions.user_id = users.id").
		Where("sessions.token = ? AND sessions.expires_at > ?", token, now).
		First(&row).Error
	if err != nil {
		return store.User{}, notFound(err)
	}
	return row.user(), nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&sessionRow{})
	return res.RowsAffected, res.Error
}

func (s *Store) StatsFor(ctx context.Context, userID int64) (store.Stats, error) {
	var row statsRow
	if err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		return store.Stats{}, notFound(err)
	}
	return row.stats(), nil
}

// RecordResult applies r under a row lock so concurrent results for the
// same user serialize.
func (s *Store) RecordResult(ctx context.Context, userID int64, r room.Result) (store.Stats, error) {
	var out store.Stats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row statsRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "user_id = ?", userID).Error
		if err != nil {
			return notFound(err)
		}
		out = row.stats().Apply(r)
		return tx.Model(&statsRow{}).Where("user_id = ?", userID).Updates(map[string]any{
			"wins":     out.Wins,
			"losses":   out.Losses,
			"kos":      out.KOs,
			"deaths":   out.Deaths,
			"streak":   out.Streak,
			"cortisol": out.Cortisol,
		}).Error
	})
	if err != nil {
		return store.Stats{}, fmt.Errorf("pgstore: record result for %d: %w", userID, err)
	}
	return out, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]store.Standing, error) {
	type joined struct {
		userRow
		statsRow
	}
	var rows []joined
	q := s.db.WithContext(ctx).Table("users").
		Select("users.*, stats.*").
		Joins("JOIN stats ON stats.user_id = users.id").
		Order("stats.cortisol ASC, stats.wins DESC, users.username ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgstore: leaderboard: %w", err)
	}
	out := make([]store.Standing, len(rows))
	for i, r := range rows {
		out[i] = store.Standing{UserID: r.userRow.ID, Username: r.Username, DisplayName: r.DisplayName, Stats: r.stats()}
	}
	return out, nil
}

func (s *Store) setColumn(ctx context.Context, userID int64, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("pgstore: set %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	return s.setColumn(ctx, userID, "is_admin", admin)
}

func (s *Store) SetMutedUntil(ctx context.Context, userID, until int64) error {
	return s.setColumn(ctx, userID, "muted_until", until)
}

func (s *Store) SetBannedUntil(ctx context.Context, userID, until int64) error {
	return s.setColumn(ctx, userID, "banned_until", until)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
