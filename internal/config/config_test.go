package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONITOR_TICK", "")
	t.Setenv("APPROVAL_TOKEN_TTL", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.Tick != time.Minute {
		t.Errorf("Monitor.Tick: want 1m, got %s", cfg.Monitor.Tick)
	}
	if cfg.Assist.TokenTTL != 15*time.Minute {
		t.Errorf("Assist.TokenTTL: want 15m, got %s", cfg.Assist.TokenTTL)
	}
	if cfg.Barriers.CacheTTL != 24*time.Hour {
		t.Errorf("Barriers.CacheTTL: want 24h, got %s", cfg.Barriers.CacheTTL)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled without REDIS_ADDR")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MONITOR_TICK", "30s")
	t.Setenv("APPROVAL_TOKEN_TTL", "600")
	t.Setenv("MONITOR_RENDER", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.Tick != 30*time.Second {
		t.Errorf("Monitor.Tick: want 30s, got %s", cfg.Monitor.Tick)
	}
	if cfg.Assist.TokenTTL != 10*time.Minute {
		t.Errorf("Assist.TokenTTL: want 10m, got %s", cfg.Assist.TokenTTL)
	}
	if !cfg.Monitor.Render {
		t.Error("Monitor.Render: want true")
	}
	if !cfg.Redis.Enabled() {
		t.Error("redis should be enabled")
	}
}

func TestLoadInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	if _, err := Load(); !errors.Is(err, ErrInvalidRedisDB) {
		t.Fatalf("want ErrInvalidRedisDB, got %v", err)
	}
}

func TestValidateForRun(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are runnable", mutate: func(c *Config) {}},
		{
			name:    "ai enabled without key",
			mutate:  func(c *Config) { c.Barriers.AIEnabled = true },
			wantErr: true,
		},
		{
			name: "ai enabled with key",
			mutate: func(c *Config) {
				c.Barriers.AIEnabled = true
				c.OpenAI.APIKey = "sk-test"
			},
		},
		{
			name:    "telegram without webhook secret",
			mutate:  func(c *Config) { c.Telegram.BotToken = "123:abc" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := ValidateForRun(cfg)
			if tt.wantErr && !errors.Is(err, ErrMissingSecret) {
				t.Fatalf("want ErrMissingSecret, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
