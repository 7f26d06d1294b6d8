// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime knob for the API server.
type Config struct {
	Addr          string        `env:"OUTPASS_ADDR"            envDefault:":8080"`
	PostgresDSN   string        `env:"OUTPASS_PG_DSN"`
	AuthSecret    string        `env:"OUTPASS_AUTH_SECRET"`
	TokenTTL      time.Duration `env:"OUTPASS_TOKEN_TTL"       envDefault:"8h"`
	RateBurst     int           `env:"OUTPASS_RATE_BURST"      envDefault:"20"`
	RatePerSecond int           `env:"OUTPASS_RATE_PER_SEC"    envDefault:"10"`
	ReadTimeout   time.Duration `env:"OUTPASS_READ_TIMEOUT"    envDefault:"15s"`
	WriteTimeout  time.Duration `env:"OUTPASS_WRITE_TIMEOUT"   envDefault:"15s"`
	IdleTimeout   time.Duration `env:"OUTPASS_IDLE_TIMEOUT"    envDefault:"60s"`
	MaxBodyBytes  int64         `env:"OUTPASS_MAX_BODY_BYTES"  envDefault:"1048576"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	return cfg, nil
}
