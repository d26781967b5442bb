package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/arcade-server/internal/auth"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
	"github.com/DoyleJ11/arcade-server/internal/store/memstore"
)

type fixedRooms struct {
	rooms []room.Info
	err   error
}

func (f fixedRooms) Rooms(context.Context) ([]room.Info, error) { return f.rooms, f.err }

func newServer(t *testing.T, rooms RoomLister) (http.Handler, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	svc := auth.NewService(st, auth.WithIterations(1000))
	log := zaptest.NewLogger(t)
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return SetupRoutes(NewHandlers(svc, st, rooms, log), ws, log), st
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestRegisterAndLogin(t *testing.T) {
	h, _ := newServer(t, fixedRooms{})

	rec, body := do(t, h, http.MethodPost, "/api/register", `{"username":"Ana","password":"pw","display_name":"Ana B"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "Ana", user["username"])
	assert.Equal(t, true, user["is_admin"])
	assert.NotContains(t, user, "PasswordHash")

	rec, body = do(t, h, http.MethodPost, "/api/register", `{"username":"ana","password":"pw"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "username_taken", body["error"])

	rec, body = do(t, h, http.MethodPost, "/api/register", `{"username":"x","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "username_too_short", body["error"])

	rec, body = do(t, h, http.MethodPost, "/api/login", `{"username":"ana","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["token"])

	rec, body = do(t, h, http.MethodPost, "/api/login", `{"username":"ana","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", body["error"])

	rec, body = do(t, h, http.MethodPost, "/api/login", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", body["error"])
}

func TestLoginBanned(t *testing.T) {
	h, st := newServer(t, fixedRooms{})
	rec, body := do(t, h, http.MethodPost, "/api/register", `{"username":"bo","password":"pw"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(body["user"].(map[string]any)["id"].(float64))
	until := time.Now().Add(time.Hour).Unix()
	require.NoError(t, st.SetBannedUntil(context.Background(), id, until))

	rec, body = do(t, h, http.MethodPost, "/api/login", `{"username":"bo","password":"pw"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "banned", body["error"])
	assert.EqualValues(t, until, body["banned_until"])
}

func TestLeaderboard(t *testing.T) {
	h, st := newServer(t, fixedRooms{})
	ctx := context.Background()
	for _, name := range []string{"ana", "bo", "cleo"} {
		_, _, err := auth.NewService(st, auth.WithIterations(1000)).Register(ctx, name, "", "pw", "")
		require.NoError(t, err)
	}
	bo, err := st.UserByUsername(ctx, "bo")
	require.NoError(t, err)
	_, err = st.RecordResult(ctx, bo.ID, room.Result{Win: true})
	require.NoError(t, err)

	rec, body := do(t, h, http.MethodGet, "/api/leaderboard?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := body["leaderboard"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "bo", rows[0].(map[string]any)["username"])

	rec, _ = do(t, h, http.MethodGet, "/api/leaderboard?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoomsAndHealth(t *testing.T) {
	h, _ := newServer(t, fixedRooms{rooms: []room.Info{{Key: "pong:a", ID: "a", Kind: room.KindPong, State: room.StateWaiting}}})

	rec, body := do(t, h, http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rooms := body["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, "pong:a", rooms[0].(map[string]any)["room_key"])

	rec, _ = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)

	down, _ := newServer(t, fixedRooms{err: errors.New("hub closed")})
	rec, body = do(t, down, http.MethodGet, "/api/rooms", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["error"])
}

var _ Standings = (*memstore.Store)(nil)
var _ store.Store = (*memstore.Store)(nil)
