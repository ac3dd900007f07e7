// Package config loads the flightcache demo server's configuration from
// the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the demo server's configuration loaded from environment
// variables.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	ProducerTimeout   time.Duration `envconfig:"PRODUCER_TIMEOUT" default:"30s"`
	UpdateAfter       time.Duration `envconfig:"UPDATE_AFTER" default:"10m"`
	ExpiresAfter      time.Duration `envconfig:"EXPIRES_AFTER" default:"30m"`
	UpdateLockTimeout time.Duration `envconfig:"UPDATE_LOCK_TIMEOUT" default:"5m"`
	EvictionCapacity  int           `envconfig:"EVICTION_CAPACITY" default:"4096"`

	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST" default:"20"`

	SQLitePath string `envconfig:"SQLITE_PATH"` // empty: use in-memory Storage
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("FLIGHTCACHE", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// Persistent reports whether a SQLite-backed Storage was requested.
func (c *Config) Persistent() bool {
	return c.SQLitePath != ""
}
