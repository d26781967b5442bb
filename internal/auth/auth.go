// Package auth issues and checks session tokens for accounts kept in the
// store. Passwords are stored as PBKDF2-SHA256 digests.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"

	"github.com/DoyleJ11/arcade-server/internal/store"
)

const (
	DefaultIterations = 200_000
	DefaultTTL        = 7 * 24 * time.Hour

	hashScheme     = "pbkdf2_sha256"
	saltBytes      = 16
	keyBytes       = 32
	maxUsername    = 32
	maxDisplayName = 48
)

var (
	ErrUsernameTooShort   = errors.New("username_too_short")
	ErrPasswordRequired   = errors.New("password_required")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("bad_token")
)

// BannedError is returned when a banned account tries to log in.
type BannedError struct{ Until int64 }

func (e *BannedError) Error() string { return fmt.Sprintf("banned until %d", e.Until) }

type Option func(*Service)

func WithIterations(n int) Option { return func(s *Service) { s.iterations = n } }
func WithTTL(d time.Duration) Option { return func(s *Service) { s.ttl = d } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithBootstrapSecret lets a registration that presents secret become admin.
func WithBootstrapSecret(secret string) Option {
	return func(s *Service) { s.bootstrapSecret = secret }
}

type Service struct {
	store           store.Store
	iterations      int
	ttl             time.Duration
	bootstrapSecret string
	now             func() time.Time
}

func NewService(s store.Store, opts ...Option) *Service {
	svc := &Service{store: s, iterations: DefaultIterations, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// SanitizeUsername keeps letters, digits and "._-".
func SanitizeUsername(v string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(v) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-", r) {
			b.WriteRune(r)
		}
	}
	out := []rune(b.String())
	if len(out) > maxUsername {
		out = out[:maxUsername]
	}
	return string(out)
}

// Register creates the account and a first session. The very first account,
// or one presenting the bootstrap secret, is an admin.
func (s *Service) Register(ctx context.Context, username, displayName, password, bootstrap string) (store.User, string, error) {
	username = SanitizeUsername(username)
	if len([]rune(username)) < 2 {
		return store.User{}, "", ErrUsernameTooShort
	}
	if password == "" {
		return store.User{}, "", ErrPasswordRequired
	}
	displayName = strings.TrimSpace(displayName)
	if r := []rune(displayName); len(r) > maxDisplayName {
		displayName = string(r[:maxDisplayName])
	}

	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return store.User{}, "", err
	}
	digest, err := HashPassword(password, s.iterations)
	if err != nil {
		return store.User{}, "", err
	}
	u, err := s.store.CreateUser(ctx, username, displayName, digest)
	if errors.Is(err, store.ErrDuplicateUsername) {
		return store.User{}, "", ErrUsernameTaken
	}
	if err != nil {
		return store.User{}, "", err
	}
	if count == 0 || (s.bootstrapSecret != "" && subtle.ConstantTimeCompare([]byte(bootstrap), []byte(s.bootstrapSecret)) == 1) {
		if err := s.store.SetAdmin(ctx, u.ID, true); err != nil {
			return store.User{}, "", err
		}
		u.IsAdmin = true
	}
	token, err := s.issue(ctx, u.ID)
	return u, token, err
}

func (s *Service) Login(ctx context.Context, username, password string) (store.User, string, error) {
	u, err := s.store.UserByUsername(ctx, SanitizeUsername(username))
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, "", err
	}
	if u.BannedAt(s.now()) {
		return store.User{}, "", &BannedError{Until: u.BannedUntil}
	}
	if !VerifyPassword(password, u.PasswordHash) {
		return store.User{}, "", ErrInvalidCredentials
	}
	token, err := s.issue(ctx, u.ID)
	return u, token, err
}

// Authenticate resolves a session token. Ban checks are left to the caller.
func (s *Service) Authenticate(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, ErrInvalidToken
	}
	u, err := s.store.UserBySession(ctx, token, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidToken
	}
	return u, err
}

// PurgeExpired removes sessions past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now())
}

// RunCleanup purges expired sessions every interval until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration, log *zap.Logger) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn("purge expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired sessions purged", zap.Int64("count", n))
			}
		}
	}
}

func (s *Service) issue(ctx context.Context, userID int64) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.store.CreateSession(ctx, token, userID, s.now().Add(s.ttl)); err != nil {
		return "", fmt.Errorf("auth: create session: %w", err)
	}
	return token, nil
}

// HashPassword encodes as "pbkdf2_sha256$<iterations>$<salt hex>$<key hex>".
func HashPassword(password string, iterations int) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keyBytes, sha256.New)
	return strings.Join([]string{hashScheme, strconv.Itoa(iterations), hex.EncodeToString(salt), hex.EncodeToString(key)}, "$"), nil
}

func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != hashScheme {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[3])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
