package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bellzar7/Codecan-EX-sub000/internal/engine"
	"github.com/bellzar7/Codecan-EX-sub000/internal/server"
	"github.com/bellzar7/Codecan-EX-sub000/internal/server/handler"
	"github.com/bellzar7/Codecan-EX-sub000/internal/server/ws"
)

// shutdownGrace is how long in-flight HTTP requests get to finish.
const shutdownGrace = 10 * time.Second

// serve starts the reconciliation engine, the websocket hub, the API
// server, and (when enabled) the archiver, and blocks until the context is
// cancelled or a component fails.
func (a *App) serve(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	// Reconciliation engine.
	eng := engine.New(engine.Deps{
		Orders:    deps.OrderStore,
		Wallet:    deps.WalletStore,
		Audit:     deps.AuditStore,
		Bans:      deps.BanStore,
		Exchange:  deps.Exchange,
		Canceller: deps.Canceller,
		Resolver:  deps.Resolver,
		Bus:       deps.Broadcaster,
		Notifier:  deps.Notifier,
	}, engine.Params{
		PollInterval:  a.cfg.Engine.PollInterval.Duration,
		FlushInterval: a.cfg.Engine.FlushInterval.Duration,
		RetryAttempts: a.cfg.Engine.RetryAttempts,
		RetryDelay:    a.cfg.Engine.RetryDelay.Duration,
		BanMaxSleep:   a.cfg.Engine.BanMaxSleep.Duration,
		DefaultBan:    a.cfg.Engine.DefaultBan.Duration,
		WalletType:    a.cfg.Engine.WalletType,
		StreamRoute:   a.cfg.Engine.StreamRoute,
	}, a.logger)

	if err := eng.Start(ctx); err != nil {
		return err
	}

	// Websocket hub bridging the signal bus to live viewers.
	hub := ws.NewHub(eng, deps.SignalBus, a.cfg.Engine.StreamRoute, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// HTTP API server.
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Orders:  handler.NewOrderHandler(eng, deps.OrderStore, a.logger),
		Wallets: handler.NewWalletHandler(deps.WalletStore, a.cfg.Engine.WalletType, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Archiver.
	if deps.Archiver != nil {
		g.Go(func() error {
			err := deps.Archiver.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	a.logger.InfoContext(ctx, "application started",
		slog.Int("port", a.cfg.Server.Port),
		slog.Bool("archiver", deps.Archiver != nil),
	)

	return g.Wait()
}
