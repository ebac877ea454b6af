// Package config defines the top-level configuration for the order
// reconciliation service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ORDERD_* environment variables.
type Config struct {
	Exchange Exchange `toml:"exchange"`
	Database Database `toml:"database"`
	Redis    Redis    `toml:"redis"`
	S3       S3       `toml:"s3"`
	Engine   Engine   `toml:"engine"`
	Archive  Archive  `toml:"archive"`
	Server   Server   `toml:"server"`
	Notify   Notify   `toml:"notify"`
	LogLevel string   `toml:"log_level"`
}

// Exchange holds execution-venue API parameters.
type Exchange struct {
	BaseURL   string `toml:"base_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	// Provider selects venue-specific order/fee normalization quirks.
	Provider string `toml:"provider"`
}

// Database holds PostgreSQL connection parameters.
type Database struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Redis holds Redis connection parameters.
type Redis struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3 holds S3-compatible object storage parameters for order archival.
type S3 struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Engine holds reconciliation engine parameters.
type Engine struct {
	// PollInterval is the minimum spacing between fetch cycles per user.
	PollInterval duration `toml:"poll_interval"`
	// FlushInterval is the cadence of the notification flush scheduler.
	FlushInterval duration `toml:"flush_interval"`
	// RetryAttempts is the fetch attempt budget per poller call.
	RetryAttempts int `toml:"retry_attempts"`
	// RetryDelay is the sleep between fetch attempts.
	RetryDelay duration `toml:"retry_delay"`
	// BanMaxSleep caps a single rate-limit backoff sleep before the shared
	// ban window is re-read.
	BanMaxSleep duration `toml:"ban_max_sleep"`
	// DefaultBan is the ban horizon applied when the venue message carries
	// no explicit unblock timestamp.
	DefaultBan duration `toml:"default_ban"`
	// WalletType is the ledger wallet credited on settlement.
	WalletType string `toml:"wallet_type"`
	// StreamRoute is the outbound route for batched order notifications.
	StreamRoute string `toml:"stream_route"`
}

// Archive holds closed-order archival parameters.
type Archive struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// Server holds HTTP server parameters.
type Server struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the REST surface. Empty disables authentication.
	APIKey string `toml:"api_key"`
}

// Notify holds notification channel credentials.
type Notify struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "1m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "1m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Exchange: Exchange{
			Provider: "default",
		},
		Database: Database{
			Host:          "localhost",
			Port:          5432,
			Database:      "exchange",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: Redis{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "orderd-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Engine: Engine{
			PollInterval:  duration{5 * time.Second},
			FlushInterval: duration{time.Second},
			RetryAttempts: 3,
			RetryDelay:    duration{5 * time.Second},
			BanMaxSleep:   duration{time.Minute},
			DefaultBan:    duration{time.Minute},
			WalletType:    "spot",
			StreamRoute:   "orders-stream",
		},
		Archive: Archive{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{time.Hour},
			BatchSize:     500,
		},
		Server: Server{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: Notify{
			Events: []string{"settlement_failed", "order_cancelled"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.Provider == "" {
		errs = append(errs, "exchange: provider must not be empty")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Engine
	if c.Engine.PollInterval.Duration <= 0 {
		errs = append(errs, "engine: poll_interval must be > 0")
	}
	if c.Engine.FlushInterval.Duration <= 0 {
		errs = append(errs, "engine: flush_interval must be > 0")
	}
	if c.Engine.RetryAttempts < 1 {
		errs = append(errs, "engine: retry_attempts must be >= 1")
	}
	if c.Engine.BanMaxSleep.Duration <= 0 {
		errs = append(errs, "engine: ban_max_sleep must be > 0")
	}
	if c.Engine.WalletType == "" {
		errs = append(errs, "engine: wallet_type must not be empty")
	}
	if c.Engine.StreamRoute == "" {
		errs = append(errs, "engine: stream_route must not be empty")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1 when enabled")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1 when enabled")
		}
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
