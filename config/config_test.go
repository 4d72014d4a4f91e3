package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("expected default addr, got %q", cfg.Addr())
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Fatalf("expected 30s heartbeat, got %s", cfg.HeartbeatInterval)
	}
	if cfg.MaxMessageSize != 100<<20 {
		t.Fatalf("expected 100 MiB message limit, got %d", cfg.MaxMessageSize)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected presence events disabled by default, got %q", cfg.RedisAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "3001")
	t.Setenv("HEARTBEAT_INTERVAL", "5s")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:3001" {
		t.Fatalf("expected env addr, got %q", cfg.Addr())
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Fatalf("expected env heartbeat, got %s", cfg.HeartbeatInterval)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected env redis addr, got %q", cfg.RedisAddr)
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("PORT", "abc")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestValidate(t *testing.T) {
	base := Config{Port: 8080, HeartbeatInterval: time.Second, WriteWait: time.Second, MaxMessageSize: 1024}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"Valid", func(*Config) {}, nil},
		{"PortTooLarge", func(c *Config) { c.Port = 99999 }, ErrInvalidPort},
		{"PortZero", func(c *Config) { c.Port = 0 }, ErrInvalidPort},
		{"NoHeartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, ErrInvalidHeartbeatInterval},
		{"NoWriteWait", func(c *Config) { c.WriteWait = -time.Second }, ErrInvalidWriteWait},
		{"NoReadLimit", func(c *Config) { c.MaxMessageSize = 0 }, ErrInvalidMaxMessageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
