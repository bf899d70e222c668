// Package pipeline coordinates the background goroutines of the daemon: the
// snapshot watcher and the cold-storage archiver.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/predictswipe/predictd/internal/snapshot"
)

// Orchestrator manages the long-running pipeline goroutines.
type Orchestrator struct {
	watcher     *snapshot.Watcher
	archiver    *Archiver // optional
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. archiver may be nil when
// archival is disabled.
func NewOrchestrator(watcher *snapshot.Watcher, archiver *Archiver, archiveCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		watcher:     watcher,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts the sub-pipelines as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation; a non-context error from any of
// them cancels the shared context and is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline orchestrator starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.logger.InfoContext(ctx, "starting snapshot watcher loop")
		err := o.watcher.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("snapshot watcher: %w", err)
	})

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.InfoContext(ctx, "starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
