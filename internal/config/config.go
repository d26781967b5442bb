// Package config reads process settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	HTTPAddr               string
	DatabaseURL            string
	TickRate               int
	MaxDT                  float64
	LobbyInterval          time.Duration
	LogLevel               string
	LogFormat              string
	CharactersFile         string
	BossEnabled            bool
	AdminConsole           bool
	AdminBootstrapSecret   string
	SessionCleanupInterval time.Duration
	SessionTTL             time.Duration
	OutboxSize             int
	WSPingInterval         time.Duration
}

func Default() Config {
	return Config{
		HTTPAddr:               ":8080",
		TickRate:               60,
		MaxDT:                  0.25,
		LobbyInterval:          time.Second,
		LogLevel:               "info",
		LogFormat:              "json",
		BossEnabled:            true,
		SessionCleanupInterval: 30 * time.Minute,
		SessionTTL:             7 * 24 * time.Hour,
		OutboxSize:             64,
		WSPingInterval:         30 * time.Second,
	}
}

// Load reads files (default ".env") if present, then the environment.
// Every malformed variable is reported, not just the first.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any key lookup, which keeps tests off the
// process environment.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	p.str("HTTP_ADDR", &c.HTTPAddr)
	p.str("DATABASE_URL", &c.DatabaseURL)
	p.integer("TICK_RATE", &c.TickRate)
	p.float("MAX_DT", &c.MaxDT)
	p.duration("LOBBY_INTERVAL", &c.LobbyInterval)
	p.str("LOG_LEVEL", &c.LogLevel)
	p.str("LOG_FORMAT", &c.LogFormat)
	p.str("CHARACTERS_FILE", &c.CharactersFile)
	p.boolean("BOSS_ENABLED", &c.BossEnabled)
	p.boolean("ADMIN_CONSOLE", &c.AdminConsole)
	p.str("ADMIN_BOOTSTRAP_SECRET", &c.AdminBootstrapSecret)
	p.duration("SESSION_CLEANUP_INTERVAL", &c.SessionCleanupInterval)
	p.duration("SESSION_TTL", &c.SessionTTL)
	p.integer("OUTBOX_SIZE", &c.OutboxSize)
	p.duration("WS_PING_INTERVAL", &c.WSPingInterval)

	if c.TickRate <= 0 {
		p.fail("TICK_RATE", "must be positive")
	}
	if c.MaxDT <= 0 {
		p.fail("MAX_DT", "must be positive")
	}
	if c.OutboxSize <= 0 {
		p.fail("OUTBOX_SIZE", "must be positive")
	}
	if c.WSPingInterval <= 0 {
		p.fail("WS_PING_INTERVAL", "must be positive")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		p.fail("LOG_FORMAT", "must be json or console")
	}
	return c, p.err
}

func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) fail(key, msg string) {
	p.err = multierr.Append(p.err, fmt.Errorf("config: %s %s", key, msg))
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	return v, ok && v != ""
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.raw(key); ok {
		*dst = v
	}
}

func (p *parser) integer(key string, dst *int) {
	if v, ok := p.raw(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key, "is not an integer")
			return
		}
		*dst = n
	}
}

func (p *parser) float(key string, dst *float64) {
	if v, ok := p.raw(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail(key, "is not a number")
			return
		}
		*dst = f
	}
}

func (p *parser) boolean(key string, dst *bool) {
	if v, ok := p.raw(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(key, "is not a boolean")
			return
		}
		*dst = b
	}
}

func (p *parser) duration(key string, dst *time.Duration) {
	if v, ok := p.raw(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(key, "is not a duration")
			return
		}
		*dst = d
	}
}
