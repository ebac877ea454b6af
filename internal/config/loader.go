package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORDERD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORDERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// --- Exchange ---
	setStr(&cfg.Exchange.BaseURL, "ORDERD_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.ApiKey, "ORDERD_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "ORDERD_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.Provider, "ORDERD_EXCHANGE_PROVIDER")

	// --- Database ---
	setStr(&cfg.Database.DSN, "ORDERD_DATABASE_DSN")
	setStr(&cfg.Database.Host, "ORDERD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ORDERD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ORDERD_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "ORDERD_DATABASE_USER")
	setStr(&cfg.Database.Password, "ORDERD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ORDERD_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "ORDERD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "ORDERD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "ORDERD_DATABASE_RUN_MIGRATIONS")

	// --- Redis ---
	setStr(&cfg.Redis.Addr, "ORDERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORDERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORDERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORDERD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORDERD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORDERD_REDIS_TLS_ENABLED")

	// --- S3 ---
	setStr(&cfg.S3.Endpoint, "ORDERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORDERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORDERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORDERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORDERD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ORDERD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ORDERD_S3_FORCE_PATH_STYLE")

	// --- Engine ---
	setDuration(&cfg.Engine.PollInterval, "ORDERD_ENGINE_POLL_INTERVAL")
	setDuration(&cfg.Engine.FlushInterval, "ORDERD_ENGINE_FLUSH_INTERVAL")
	setInt(&cfg.Engine.RetryAttempts, "ORDERD_ENGINE_RETRY_ATTEMPTS")
	setDuration(&cfg.Engine.RetryDelay, "ORDERD_ENGINE_RETRY_DELAY")
	setDuration(&cfg.Engine.BanMaxSleep, "ORDERD_ENGINE_BAN_MAX_SLEEP")
	setDuration(&cfg.Engine.DefaultBan, "ORDERD_ENGINE_DEFAULT_BAN")
	setStr(&cfg.Engine.WalletType, "ORDERD_ENGINE_WALLET_TYPE")
	setStr(&cfg.Engine.StreamRoute, "ORDERD_ENGINE_STREAM_ROUTE")

	// --- Archive ---
	setBool(&cfg.Archive.Enabled, "ORDERD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ORDERD_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "ORDERD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "ORDERD_ARCHIVE_BATCH_SIZE")

	// --- Server ---
	setInt(&cfg.Server.Port, "ORDERD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ORDERD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ORDERD_SERVER_API_KEY")

	// --- Notify ---
	setStr(&cfg.Notify.TelegramToken, "ORDERD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORDERD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORDERD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ORDERD_NOTIFY_EVENTS")

	// --- Top-level ---
	setStr(&cfg.LogLevel, "ORDERD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
