package core

// scheduler.go prunes the run history in the background. It runs once on
// start and then every CheckInterval until its context is cancelled.
// A failed prune is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// Default history pruning settings.
const (
	DefaultHistoryRetention = 30 * 24 * time.Hour
	DefaultPruneInterval    = 24 * time.Hour
)

// PruneConfig holds configuration for the history pruner.
// Zero values fall back to the defaults.
type PruneConfig struct {
	Retention     time.Duration // age after which stored runs are deleted
	CheckInterval time.Duration // how often to prune
}

// Pruner is a RunStore that can delete old runs.
type Pruner interface {
	PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartPruneScheduler periodically deletes stored runs older than the
// retention. It returns immediately when the configured store cannot prune.
func (s *Service) StartPruneScheduler(ctx context.Context, cfg PruneConfig) {
	pruner, ok := s.cfg.Store.(Pruner)
	if !ok {
		return
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultHistoryRetention
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultPruneInterval
	}

	slog.Info("prune scheduler started",
		"retention", cfg.Retention.String(),
		"interval", cfg.CheckInterval.String(),
	)

	pruneOnce(ctx, pruner, cfg.Retention)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("prune scheduler stopped")
			return
		case <-ticker.C:
			pruneOnce(ctx, pruner, cfg.Retention)
		}
	}
}

// pruneOnce performs one prune cycle.
func pruneOnce(ctx context.Context, p Pruner, retention time.Duration) {
	start := time.Now()
	purged, err := p.PurgeRunsBefore(ctx, start.Add(-retention))
	if err != nil {
		slog.Error("prune failed", "error", err)
		return
	}
	slog.Info("pruned run history",
		"runs_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
