package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbbot/internal/arbitrage"
	"github.com/alanyoungcy/arbbot/internal/executor"
	"github.com/alanyoungcy/arbbot/internal/feed"
	"github.com/alanyoungcy/arbbot/internal/pipeline"
	"github.com/alanyoungcy/arbbot/internal/server"
	"github.com/alanyoungcy/arbbot/internal/server/handler"
	"github.com/alanyoungcy/arbbot/internal/server/ws"
	"github.com/alanyoungcy/arbbot/internal/service"
)

const shutdownTimeout = 10 * time.Second

// DetectorMode runs the opportunity detector.
func (a *App) DetectorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detector mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startDetector(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, false)
	return g.Wait()
}

// ExecutorMode runs the execution reconciler.
func (a *App) ExecutorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting executor mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startExecutor(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, false)
	return g.Wait()
}

// FeedMode runs the simulated bookmaker feed.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, false)
	return g.Wait()
}

// GatewayMode serves the API and the WebSocket feed.
func (a *App) GatewayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting gateway mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, true)
	return g.Wait()
}

// LedgerMode records detections and executions and runs the archiver.
func (a *App) LedgerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ledger mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startLedger(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, false)
	return g.Wait()
}

// FullMode runs every component in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startLedger(ctx, g, deps)
	a.startExecutor(ctx, g, deps)
	a.startDetector(ctx, g, deps)
	a.startFeed(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, true)
	return g.Wait()
}

func (a *App) startDetector(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	d := arbitrage.NewDetector(arbitrage.DetectorConfig{
		Quotes:       deps.Quotes,
		Bus:          deps.SignalBus,
		OddsChannel:  a.cfg.Bus.OddsChannel,
		ArbChannel:   a.cfg.Bus.DetectionChannel,
		TotalStake:   a.cfg.Detector.TotalStake,
		RetryBackoff: a.cfg.Bus.RetryBackoff.Duration,
		Logger:       a.logger,
	})
	g.Go(func() error { return d.Run(ctx) })
}

func (a *App) startExecutor(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	rec := executor.NewReconciler(executor.ReconcilerConfig{
		Quotes:  deps.Quotes,
		Bus:     deps.SignalBus,
		Channel: a.cfg.Bus.ExecutionChannel,
		Delay:   a.cfg.Executor.Delay.Duration,
		Logger:  a.logger,
	})
	e := executor.NewExecutor(executor.Config{
		Reconciler:   rec,
		Bus:          deps.SignalBus,
		Channel:      a.cfg.Bus.DetectionChannel,
		RetryBackoff: a.cfg.Bus.RetryBackoff.Duration,
		DedupTTL:     a.cfg.Executor.DedupTTL.Duration,
		DrainTimeout: a.cfg.Executor.DrainTimeout.Duration,
		Logger:       a.logger,
	})
	g.Go(func() error { return e.Run(ctx) })
}

func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sim := feed.NewSimulator(feed.SimulatorConfig{
		Quotes:      deps.Quotes,
		Bus:         deps.SignalBus,
		History:     deps.OddsHistory,
		Channel:     a.cfg.Bus.OddsChannel,
		Interval:    a.cfg.Feed.Interval.Duration,
		UpdateProb:  a.cfg.Feed.UpdateProb,
		CloseProb:   a.cfg.Feed.CloseProb,
		Vig:         a.cfg.Feed.Vig,
		HomeOddsMin: a.cfg.Feed.HomeOddsMin,
		HomeOddsMax: a.cfg.Feed.HomeOddsMax,
		Matches:     a.cfg.Feed.Matches,
		Bookmakers:  a.cfg.Feed.Bookmakers,
		Seed:        a.cfg.Feed.Seed,
		Logger:      a.logger,
	})
	g.Go(func() error { return sim.Run(ctx) })
}

func (a *App) startLedger(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	ledger := service.NewLedger(service.LedgerConfig{
		Bus:              deps.SignalBus,
		Arbs:             deps.ArbStore,
		Audit:            deps.AuditStore,
		Notifier:         deps.Notifier,
		DetectionChannel: a.cfg.Bus.DetectionChannel,
		ExecutionChannel: a.cfg.Bus.ExecutionChannel,
		AuditStream:      a.cfg.Bus.AuditStream,
		RetryBackoff:     a.cfg.Bus.RetryBackoff.Duration,
		Logger:           a.logger,
	})
	g.Go(func() error { return ledger.Run(ctx) })

	if deps.Archiver == nil {
		if a.cfg.Archive.Enabled {
			a.logger.WarnContext(ctx, "archive enabled but postgres or s3 is not wired, archiver not started")
		}
		return
	}
	archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.Interval.Duration, a.cfg.Archive.Retention.Duration, a.logger)
	if deps.Locks != nil {
		archiver.WithLock(deps.Locks)
	}
	g.Go(func() error { return archiver.Run(ctx) })
}

// startHTTPServer serves health and metrics in every mode. withAPI adds the
// WebSocket hub and the read API.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, withAPI bool) {
	if !a.cfg.Server.Enabled {
		return
	}

	handlers := server.Handlers{Health: handler.NewHealthHandler()}
	var hub *ws.Hub
	if withAPI {
		hub = ws.NewHub(ws.Config{
			Bus:              deps.SignalBus,
			OddsChannel:      a.cfg.Bus.OddsChannel,
			DetectionChannel: a.cfg.Bus.DetectionChannel,
			ExecutionChannel: a.cfg.Bus.ExecutionChannel,
			AllowedOrigins:   a.cfg.Server.CORSOrigins,
			RetryBackoff:     a.cfg.Bus.RetryBackoff.Duration,
			Logger:           a.logger,
		})
		g.Go(func() error { return hub.Run(ctx) })

		handlers.Arb = handler.NewArbHandler(deps.ArbStore, deps.SignalBus, a.cfg.Bus.AuditStream, a.logger)
		handlers.Odds = handler.NewOddsHandler(deps.Quotes, a.logger)
		if deps.OddsHistory != nil {
			handlers.Odds.WithHistory(deps.OddsHistory)
		}
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})

	a.logger.InfoContext(ctx, "http server enabled",
		slog.Int("port", a.cfg.Server.Port),
		slog.Bool("api", withAPI),
	)
}
