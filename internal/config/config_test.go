package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, time.Second/60, c.TickInterval())
}

func TestOverrides(t *testing.T) {
	c, err := FromLookup(lookupFrom(map[string]string{
		"HTTP_ADDR":        ":9000",
		"TICK_RATE":        "30",
		"MAX_DT":           "0.1",
		"LOBBY_INTERVAL":   "2s",
		"BOSS_ENABLED":     "false",
		"LOG_FORMAT":       "console",
		"SESSION_TTL":      "1h",
		"DATABASE_URL":     "postgres://x",
		"WS_PING_INTERVAL": "15s",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.HTTPAddr)
	assert.Equal(t, 30, c.TickRate)
	assert.Equal(t, 0.1, c.MaxDT)
	assert.Equal(t, 2*time.Second, c.LobbyInterval)
	assert.False(t, c.BossEnabled)
	assert.Equal(t, "console", c.LogFormat)
	assert.Equal(t, time.Hour, c.SessionTTL)
	assert.Equal(t, "postgres://x", c.DatabaseURL)
	assert.Equal(t, 15*time.Second, c.WSPingInterval)
}

func TestAllErrorsReported(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"TICK_RATE":    "fast",
		"BOSS_ENABLED": "maybe",
		"OUTBOX_SIZE":  "0",
		"LOG_FORMAT":   "xml",
	}))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	assert.Contains(t, err.Error(), "TICK_RATE")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("OUTBOX_SIZE=16\n"), 0o600))
	t.Setenv("OUTBOX_SIZE", "")
	require.NoError(t, os.Unsetenv("OUTBOX_SIZE"))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, c.OutboxSize)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}
