package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalTOML = `
[exchange]
base_url = "https://api.venue.test"
api_key = "k"
api_secret = "s"

[database]
dsn = "postgres://postgres:pw@localhost:5432/exchange"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.PollInterval.Duration != 5*time.Second {
		t.Fatalf("poll_interval = %v, want default 5s", cfg.Engine.PollInterval.Duration)
	}
	if cfg.Engine.FlushInterval.Duration != time.Second {
		t.Fatalf("flush_interval = %v, want default 1s", cfg.Engine.FlushInterval.Duration)
	}
	if cfg.Engine.RetryAttempts != 3 {
		t.Fatalf("retry_attempts = %d, want default 3", cfg.Engine.RetryAttempts)
	}
	if cfg.Engine.WalletType != "spot" {
		t.Fatalf("wallet_type = %q, want default spot", cfg.Engine.WalletType)
	}
	if cfg.Engine.StreamRoute != "orders-stream" {
		t.Fatalf("stream_route = %q, want default orders-stream", cfg.Engine.StreamRoute)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate on defaults+minimal: %v", err)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalTOML+`
[engine]
poll_interval = "10s"
ban_max_sleep = "30s"
default_ban = "2m"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.PollInterval.Duration != 10*time.Second {
		t.Fatalf("poll_interval = %v, want 10s", cfg.Engine.PollInterval.Duration)
	}
	if cfg.Engine.BanMaxSleep.Duration != 30*time.Second {
		t.Fatalf("ban_max_sleep = %v, want 30s", cfg.Engine.BanMaxSleep.Duration)
	}
	if cfg.Engine.DefaultBan.Duration != 2*time.Minute {
		t.Fatalf("default_ban = %v, want 2m", cfg.Engine.DefaultBan.Duration)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORDERD_EXCHANGE_API_KEY", "env-key")
	t.Setenv("ORDERD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ORDERD_SERVER_PORT", "9090")
	t.Setenv("ORDERD_ENGINE_POLL_INTERVAL", "7s")

	cfg, err := Load(writeConfig(t, minimalTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Exchange.ApiKey != "env-key" {
		t.Fatalf("api_key = %q, want env override", cfg.Exchange.ApiKey)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Fatalf("redis addr = %q, want env override", cfg.Redis.Addr)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.PollInterval.Duration != 7*time.Second {
		t.Fatalf("poll_interval = %v, want env override 7s", cfg.Engine.PollInterval.Duration)
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.BaseURL = ""
	cfg.Redis.Addr = ""
	cfg.Engine.PollInterval.Duration = 0
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}

	msg := err.Error()
	for _, want := range []string{"base_url", "redis: addr", "poll_interval", "log_level"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("validation error %q missing %q", msg, want)
		}
	}
}

func TestValidateRejectsBadPoolBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.BaseURL = "https://api.venue.test"
	cfg.Database.PoolMinConns = 20
	cfg.Database.PoolMaxConns = 5

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "pool_min_conns") {
		t.Fatalf("err = %v, want pool bounds complaint", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
