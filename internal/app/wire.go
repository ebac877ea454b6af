package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/archive"
	s3blob "github.com/bellzar7/Codecan-EX-sub000/internal/blob/s3"
	"github.com/bellzar7/Codecan-EX-sub000/internal/cache/redis"
	"github.com/bellzar7/Codecan-EX-sub000/internal/config"
	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
	"github.com/bellzar7/Codecan-EX-sub000/internal/exchange"
	"github.com/bellzar7/Codecan-EX-sub000/internal/market"
	"github.com/bellzar7/Codecan-EX-sub000/internal/notify"
	"github.com/bellzar7/Codecan-EX-sub000/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application needs.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	OrderStore  domain.OrderStore
	WalletStore domain.WalletStore
	AuditStore  domain.AuditStore

	// Caches
	BanStore    domain.BanStore
	SignalBus   domain.SignalBus
	Broadcaster domain.Broadcaster

	// Venue
	Exchange  domain.ExchangeClient
	Canceller domain.OrderCanceller
	Resolver  domain.MarketFeeResolver

	// Archival. Nil when archiving is disabled.
	Archiver *archive.Archiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks verifies each backing dependency is reachable, keyed by
	// name.
	HealthChecks map[string]func(context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HealthChecks: make(map[string]func(context.Context) error),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.HealthChecks["postgres"] = pgClient.Ping

	pool := pgClient.Pool()
	orderStore := postgres.NewOrderStore(pool)
	deps.OrderStore = orderStore
	deps.WalletStore = postgres.NewWalletStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.HealthChecks["redis"] = redisClient.Ping

	deps.BanStore = redis.NewBanStore(redisClient)
	bus := redis.NewSignalBus(redisClient)
	deps.SignalBus = bus
	deps.Broadcaster = redis.NewBroadcaster(bus)

	// --- Execution venue ---
	venue := exchange.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.ApiKey, cfg.Exchange.ApiSecret)
	deps.Exchange = venue
	deps.Canceller = venue
	deps.Resolver = market.NewResolver(venue, cfg.Exchange.Provider)

	// --- S3 blob storage + archiver (optional) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.HealthChecks["s3"] = s3Client.Health

		deps.Archiver = archive.New(
			orderStore,
			s3blob.NewWriter(s3Client),
			deps.AuditStore,
			archive.Config{
				Retention: time24h(cfg.Archive.RetentionDays),
				Interval:  cfg.Archive.Interval.Duration,
				BatchSize: cfg.Archive.BatchSize,
			},
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// time24h converts a whole-day retention setting into a duration.
func time24h(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
