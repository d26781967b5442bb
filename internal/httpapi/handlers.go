package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/DoyleJ11/arcade-server/internal/auth"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
)

const (
	defaultLeaderboard = 25
	maxLeaderboard     = 100
	maxBodyBytes       = 16 << 10
)

type Accounts interface {
	Register(ctx context.Context, username, displayName, password, bootstrap string) (store.User, string, error)
	Login(ctx context.Context, username, password string) (store.User, string, error)
}

type Standings interface {
	Leaderboard(ctx context.Context, limit int) ([]store.Standing, error)
}

type RoomLister interface {
	Rooms(ctx context.Context) ([]room.Info, error)
}

type Handlers struct {
	accounts Accounts
	stand    Standings
	rooms    RoomLister
	log      *zap.Logger
}

func NewHandlers(accounts Accounts, stand Standings, rooms RoomLister, log *zap.Logger) *Handlers {
	return &Handlers{accounts: accounts, stand: stand, rooms: rooms, log: log}
}

type credentials struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Bootstrap   string `json:"bootstrap_secret"`
}

type session struct {
	Token string     `json:"token"`
	User  store.User `json:"user"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !h.readJSON(w, r, &c) {
		return
	}
	u, token, err := h.accounts.Register(r.Context(), c.Username, c.DisplayName, c.Password, c.Bootstrap)
	if err != nil {
		h.authError(w, "register", err)
		return
	}
	h.log.Info("user registered", zap.Int64("user", u.ID), zap.Bool("admin", u.IsAdmin))
	h.writeJSON(w, http.StatusCreated, session{Token: token, User: u})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !h.readJSON(w, r, &c) {
		return
	}
	u, token, err := h.accounts.Login(r.Context(), c.Username, c.Password)
	if err != nil {
		h.authError(w, "login", err)
		return
	}
	h.writeJSON(w, http.StatusOK, session{Token: token, User: u})
}

func (h *Handlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboard
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.errorJSON(w, http.StatusBadRequest, "bad_limit")
			return
		}
		limit = min(n, maxLeaderboard)
	}
	rows, err := h.stand.Leaderboard(r.Context(), limit)
	if err != nil {
		h.log.Error("leaderboard", zap.Error(err))
		h.errorJSON(w, http.StatusInternalServerError, "internal")
		return
	}
	if rows == nil {
		rows = []store.Standing{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"leaderboard": rows})
}

func (h *Handlers) Rooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.Rooms(r.Context())
	if err != nil {
		h.log.Warn("list rooms", zap.Error(err))
		h.errorJSON(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) authError(w http.ResponseWriter, op string, err error) {
	var banned *auth.BannedError
	switch {
	case errors.As(err, &banned):
		h.writeJSON(w, http.StatusForbidden, map[string]any{"error": "banned", "banned_until": banned.Until})
	case errors.Is(err, auth.ErrUsernameTooShort), errors.Is(err, auth.ErrPasswordRequired):
		h.errorJSON(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUsernameTaken):
		h.errorJSON(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.errorJSON(w, http.StatusUnauthorized, err.Error())
	default:
		h.log.Error(op, zap.Error(err))
		h.errorJSON(w, http.StatusInternalServerError, "internal")
	}
}

func (h *Handlers) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.errorJSON(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("encode response", zap.Error(err))
	}
}

func (h *Handlers) errorJSON(w http.ResponseWriter, status int, code string) {
	h.writeJSON(w, status, map[string]string{"error": code})
}
