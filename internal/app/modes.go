package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/portfolioledger/internal/server"
	"github.com/alanyoungcy/portfolioledger/internal/server/handler"
	"github.com/alanyoungcy/portfolioledger/internal/server/middleware"
	"github.com/alanyoungcy/portfolioledger/internal/server/ws"
)

// APIMode serves the HTTP and WebSocket API, together with the display price
// poller and the notifier when they are configured.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startPricePoller(ctx, g, deps)
	a.startNotifier(ctx, g, deps)
	return g.Wait()
}

// SettlerMode runs only the background auction settler. It is meant to run
// next to one or more api processes sharing the same database.
func (a *App) SettlerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settler mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Settler.Run(ctx)
	})
	return g.Wait()
}

// ArchiveMode periodically copies committed events to object storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// FullMode starts every subsystem: the API, the settler, the archiver, the
// price poller and the notifier.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Settler.Run(ctx)
	})
	a.startArchiver(ctx, g, deps)
	a.startPricePoller(ctx, g, deps)
	a.startNotifier(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer adds the HTTP server and the WebSocket hub to the errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      a.startedAt,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, a.startedAt, deps.Accounts, deps.Contracts),
		Listings: handler.NewListingHandler(deps.Listings, deps.Contracts, a.logger),
		Stakes:   handler.NewStakeHandler(deps.Stakes, a.logger),
		Custody:  handler.NewCustodyHandler(deps.Custody, deps.Accounts, deps.Contracts, a.logger),
		Events:   handler.NewEventHandler(deps.Events, a.logger),
	}
	if deps.Prices != nil {
		handlers.Auctions = handler.NewAuctionHandler(deps.Auctions, deps.Prices, a.logger)
		handlers.Prices = handler.NewPriceHandler(deps.Prices, a.logger)
	} else {
		handlers.Auctions = handler.NewAuctionHandler(deps.Auctions, nil, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Auth: middleware.AuthConfig{
			APIKey:     a.cfg.Server.APIKey,
			APIKeyHash: a.cfg.Server.APIKeyHash,
		},
		RateLimit:  a.cfg.Server.RateLimit,
		RateWindow: a.cfg.Server.RateWindow.Duration,
	}, handlers, server.Options{
		Hub:      hub,
		Limiter:  deps.RateLimiter,
		Gatherer: deps.Registry,
		Recorder: deps.Metrics,
	}, a.logger)

	if a.cfg.Server.APIKey == "" && a.cfg.Server.APIKeyHash == "" {
		a.logger.WarnContext(ctx, "HTTP server: no api key configured, write routes are open")
	}

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver adds a ticker that exports new events to object storage.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		a.logger.WarnContext(ctx, "archiver: object storage not wired, skipping")
		return
	}
	interval := a.cfg.Archive.Interval.Duration

	g.Go(func() error {
		a.logger.InfoContext(ctx, "archiver: started", slog.Duration("interval", interval))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			a.archiveOnce(ctx, deps)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
}

func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) {
	n, err := deps.Archiver.ArchiveEvents(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.WarnContext(ctx, "archiver: run failed", slog.String("error", err.Error()))
		}
		return
	}
	deps.Metrics.EventsArchived(int(n))
	if n > 0 {
		a.logger.InfoContext(ctx, "archiver: events archived", slog.Int64("count", n))
	}
}

// startPricePoller adds the display price poller when the feed is enabled.
func (a *App) startPricePoller(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Prices == nil {
		return
	}
	g.Go(func() error {
		return deps.Prices.Run(ctx)
	})
}

// startNotifier adds the event notifier when at least one channel is set.
func (a *App) startNotifier(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Notifier == nil || !deps.Notifier.Enabled() {
		return
	}
	g.Go(func() error {
		return deps.Notifier.Run(ctx, deps.SignalBus)
	})
}
