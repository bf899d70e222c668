package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/predictswipe/predictd/internal/domain"
	"github.com/predictswipe/predictd/internal/ledger"
	"github.com/predictswipe/predictd/internal/pipeline"
	"github.com/predictswipe/predictd/internal/server"
	"github.com/predictswipe/predictd/internal/server/handler"
	"github.com/predictswipe/predictd/internal/server/ws"
	"github.com/predictswipe/predictd/internal/service"
	"github.com/predictswipe/predictd/internal/snapshot"
	"github.com/predictswipe/predictd/internal/workflow"
)

// ServeMode runs the HTTP and WebSocket API together with the snapshot
// watcher that keeps the cache and the bus fresh.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	// Nothing may be scheduled on the group before the fallible build, or
	// an early return would strand running goroutines.
	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return fmt.Errorf("app: serve mode: %w", err)
	}

	watcher := snapshot.NewWatcher(
		deps.Aggregator, deps.SnapshotCache, deps.SignalBus,
		a.cfg.Markets.RefreshInterval.Duration, a.logger,
	)
	g.Go(func() error {
		err := watcher.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}

// WatchMode runs the snapshot watcher and, when enabled, the archival cron.
// No transactions are signed in this mode.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	orch := a.buildOrchestrator(deps)
	return orch.Run(ctx)
}

// BetMode places a single bet with the configured stake and exits.
func (a *App) BetMode(ctx context.Context, deps *Dependencies) error {
	side, err := parseSide(a.oneShot.Side)
	if err != nil {
		return fmt.Errorf("app: bet mode: %w", err)
	}
	if a.oneShot.MarketID <= 0 {
		return fmt.Errorf("app: bet mode: market id %d must be positive", a.oneShot.MarketID)
	}

	svc, err := a.buildBetService(deps)
	if err != nil {
		return fmt.Errorf("app: bet mode: %w", err)
	}
	a.logger.InfoContext(ctx, "placing bet",
		slog.Int64("market_id", a.oneShot.MarketID),
		slog.String("side", string(side)),
		slog.String("account", svc.Account()),
	)

	result, err := svc.PlaceBet(ctx, domain.BettingIntent{
		MarketID: a.oneShot.MarketID,
		Side:     side,
		Stake:    svc.Stake(),
	})
	if err != nil {
		return fmt.Errorf("app: bet mode: %w", err)
	}

	a.logger.InfoContext(ctx, "bet confirmed",
		slog.String("bet_id", result.BetID),
		slog.String("approval_tx", result.ApprovalTx.Hash),
		slog.String("purchase_tx", result.PurchaseTx.Hash),
		slog.Uint64("block", result.Confirmed.BlockNumber),
	)
	return nil
}

// CreateMode creates a single market and exits.
func (a *App) CreateMode(ctx context.Context, deps *Dependencies) error {
	svc, err := a.buildBetService(deps)
	if err != nil {
		return fmt.Errorf("app: create mode: %w", err)
	}
	a.logger.InfoContext(ctx, "creating market",
		slog.String("question", a.oneShot.Question),
		slog.String("account", svc.Account()),
	)

	result, err := svc.CreateMarket(ctx, workflow.CreateParams{
		Question: a.oneShot.Question,
		OptionA:  a.oneShot.OptionA,
		OptionB:  a.oneShot.OptionB,
		EndTime:  a.oneShot.EndTime,
	})
	if err != nil {
		return fmt.Errorf("app: create mode: %w", err)
	}

	a.logger.InfoContext(ctx, "market created",
		slog.String("record_id", result.RecordID),
		slog.String("create_tx", result.CreateTx.Hash),
		slog.Uint64("block", result.Confirmed.BlockNumber),
	)
	return nil
}

// FullMode runs everything: the pipeline orchestrator plus the HTTP and
// WebSocket API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return fmt.Errorf("app: full mode: %w", err)
	}

	orch := a.buildOrchestrator(deps)
	g.Go(func() error {
		err := orch.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}

// buildOrchestrator assembles the snapshot watcher and the optional archiver
// into a pipeline orchestrator.
func (a *App) buildOrchestrator(deps *Dependencies) *pipeline.Orchestrator {
	watcher := snapshot.NewWatcher(
		deps.Aggregator, deps.SnapshotCache, deps.SignalBus,
		a.cfg.Markets.RefreshInterval.Duration, a.logger,
	)

	var archiver *pipeline.Archiver
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		archiver = pipeline.NewArchiver(
			deps.Archiver, deps.SnapshotCache, a.cfg.Archive.RetentionDays, a.logger,
		)
	}

	return pipeline.NewOrchestrator(watcher, archiver, a.cfg.Archive.Cron, a.logger)
}

// buildBetService assembles the transaction-side service from the wired
// dependencies. The signer is present in every mode that reaches here.
func (a *App) buildBetService(deps *Dependencies) (*service.BetService, error) {
	stake, ok := a.cfg.Markets.Stake()
	if !ok {
		return nil, fmt.Errorf("app: markets stake_wei %q is not a positive decimal integer", a.cfg.Markets.StakeWei)
	}
	session := ledger.NewSession(deps.Gateway, deps.Signer)
	return service.NewBetService(
		session, deps.Prediction, deps.Token, stake,
		service.BetServiceDeps{
			Locks:     deps.LockManager,
			Bets:      deps.BetStore,
			Creations: deps.CreationStore,
			Audit:     deps.AuditStore,
			Notifier:  deps.Notifier,
		},
		a.logger,
	), nil
}

// startHTTPServer registers the API server and the WebSocket hub on the
// errgroup, plus a goroutine that shuts the server down when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	betSvc, err := a.buildBetService(deps)
	if err != nil {
		return err
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	marketSvc := service.NewMarketService(deps.Aggregator, deps.SnapshotCache, a.logger)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Markets: handler.NewMarketHandler(marketSvc, a.logger),
			Bets:    handler.NewBetHandler(betSvc, deps.BlobReader, a.logger),
			Create:  handler.NewCreateHandler(betSvc, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return nil
}

// parseSide maps the CLI side flag onto a bet side.
func parseSide(s string) (domain.BetSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "option_a":
		return domain.SideOptionA, nil
	case "b", "option_b":
		return domain.SideOptionB, nil
	default:
		return "", fmt.Errorf("side %q must be %q or %q", s, "a", "b")
	}
}
