package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every startup setting. It is parsed once in main and passed
// by value; nothing here mutates after Load returns.
type Config struct {
	Addr string `env:"TASKHUB_ADDR" envDefault:":8080"`

	// Postgres DSN. Empty means in-memory stores (dev and tests).
	PostgresDSN string `env:"TASKHUB_PG_DSN"`

	AuthSecret   string `env:"TASKHUB_AUTH_SECRET"`
	AuthIssuer   string `env:"TASKHUB_AUTH_ISSUER" envDefault:"taskhub"`
	AuthAudience string `env:"TASKHUB_AUTH_AUDIENCE" envDefault:"taskhub-api"`

	AccessTTLMinutes int `env:"TASKHUB_ACCESS_TTL_MINUTES" envDefault:"60"`
	RefreshTTLDays   int `env:"TASKHUB_REFRESH_TTL_DAYS" envDefault:"7"`

	RateBurst  int `env:"TASKHUB_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"TASKHUB_RATE_PER_SEC" envDefault:"10"`
}

// Load parses the environment and validates required settings. A missing
// signing secret is a startup failure, never a per-request one.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return errors.New("TASKHUB_AUTH_SECRET is required")
	}
	if strings.TrimSpace(c.AuthIssuer) == "" {
		return errors.New("TASKHUB_AUTH_ISSUER must not be blank")
	}
	if strings.TrimSpace(c.AuthAudience) == "" {
		return errors.New("TASKHUB_AUTH_AUDIENCE must not be blank")
	}
	if c.AccessTTLMinutes <= 0 {
		return errors.New("TASKHUB_ACCESS_TTL_MINUTES must be > 0")
	}
	if c.RefreshTTLDays <= 0 {
		return errors.New("TASKHUB_REFRESH_TTL_DAYS must be > 0")
	}
	return nil
}

// AccessTTL returns the configured access token lifetime.
func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

// RefreshTTL returns the configured refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}
