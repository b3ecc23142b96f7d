// Package pipeline runs periodic background jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

const archiveLockKey = "archive:arb_executions"

// Archiver periodically moves executed opportunities older than the
// retention window out of Postgres and into blob storage.
type Archiver struct {
	blob      domain.Archiver
	locks     domain.LockManager
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(blob domain.Archiver, interval, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:      blob,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// WithLock makes every run take a shared lock first, so only one ledger
// process archives at a time. A run that finds the lock held is skipped.
func (a *Archiver) WithLock(locks domain.LockManager) *Archiver {
	a.locks = locks
	return a
}

// RunOnce archives every execution older than the retention window.
func (a *Archiver) RunOnce(ctx context.Context) (int64, error) {
	if a.locks != nil {
		release, err := a.locks.Acquire(ctx, archiveLockKey, a.interval)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive run skipped, another instance holds the lock")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("pipeline: archive lock: %w", err)
		}
		defer release()
	}

	cutoff := a.now().UTC().Add(-a.retention)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Duration("retention", a.retention),
	)

	n, err := a.blob.ArchiveExecutions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pipeline: archive executions before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("arb_archived", n))
	return n, nil
}

// Run calls RunOnce every interval until ctx is cancelled. A failed run is
// logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started", slog.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
