package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stakeledger/stakeledger/internal/server"
	"github.com/stakeledger/stakeledger/internal/server/handler"
	"github.com/stakeledger/stakeledger/internal/server/ws"
	"github.com/stakeledger/stakeledger/internal/service"
)

// ServerMode runs the HTTP/WebSocket API on top of Postgres with on-chain
// asset movement.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// MemoryMode runs the same API against the in-process ledger and vault, with
// no external stores. Intended for development and integration testing.
func (a *App) MemoryMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting memory mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode performs a one-shot export of closed positions and audit
// entries older than the retention window, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	return a.runArchive(ctx, deps)
}

// FullMode runs the API server plus a periodic archive loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Staking.ArchiveInterval.Duration)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := a.runArchive(ctx, deps); err != nil {
					a.logger.ErrorContext(ctx, "archive run failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})

	return g.Wait()
}

// runArchive exports records older than the configured retention window.
func (a *App) runArchive(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Staking.ArchiveRetentionDays)

	paths, err := deps.Archiver.Archive(ctx, cutoff)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Any("paths", paths),
	)
	return nil
}

// startHTTPServer builds the service layer, the WebSocket hub, and the HTTP
// server, and adds their goroutines to the given errgroup. The server is shut
// down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	registrySvc := service.NewRegistryService(
		deps.TokenStore, deps.TokenCache, deps.SignalBus, deps.AuditStore,
		deps.Operator, a.logger,
	)
	stakingSvc := service.NewStakingService(
		registrySvc, deps.Ledger, deps.Assets, deps.Payer,
		deps.SignalBus, deps.AuditStore, deps.Operator, a.logger,
	)

	// WebSocket hub — requires the Redis signal bus; memory mode runs
	// without live events.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      strings.ToLower(a.cfg.Mode),
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Tokens:    handler.NewTokenHandler(registrySvc, a.logger),
			Staking:   handler.NewStakingHandler(stakingSvc, a.logger),
			Positions: handler.NewPositionHandler(stakingSvc, a.logger),
			Interest:  handler.NewInterestHandler(stakingSvc, a.logger),
			Reserve:   handler.NewReserveHandler(stakingSvc, a.logger),
			Audit:     handler.NewAuditHandler(deps.AuditStore, stakingSvc, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
