package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.TokenTTL != 8*time.Hour {
		t.Fatalf("unexpected token ttl: %s", cfg.TokenTTL)
	}
	if cfg.RateBurst != 20 || cfg.RatePerSecond != 10 {
		t.Fatalf("unexpected rate limits: %d/%d", cfg.RateBurst, cfg.RatePerSecond)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected body cap: %d", cfg.MaxBodyBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OUTPASS_ADDR", ":9090")
	t.Setenv("OUTPASS_PG_DSN", "postgres://localhost/outpass")
	t.Setenv("OUTPASS_TOKEN_TTL", "30m")
	t.Setenv("OUTPASS_RATE_BURST", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9090" || cfg.PostgresDSN != "postgres://localhost/outpass" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("ttl override not applied: %s", cfg.TokenTTL)
	}
	// Nonsense limits fall back to the defaults.
	if cfg.RateBurst != 20 {
		t.Fatalf("negative burst not corrected: %d", cfg.RateBurst)
	}
}
