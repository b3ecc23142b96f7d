package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbbot/internal/bus"
	"github.com/alanyoungcy/arbbot/internal/domain"
)

// Executor listens for detected opportunities and reconciles each one in its
// own supervised task. While dedup is enabled an opportunity id is reconciled
// at most once at a time, and not again until DedupTTL after it settled.
type Executor struct {
	reconciler   *Reconciler
	bus          domain.SignalBus
	channel      string
	backoff      time.Duration
	claims       *Claims
	drainTimeout time.Duration
	logger       *slog.Logger

	cleanupInterval time.Duration
}

// Config configures an Executor.
type Config struct {
	Reconciler *Reconciler
	Bus        domain.SignalBus
	// Channel carries detected opportunities.
	Channel      string
	RetryBackoff time.Duration
	// DedupTTL is how long a settled opportunity id keeps rejecting
	// redeliveries; zero disables deduplication.
	DedupTTL time.Duration
	// DrainTimeout is how long shutdown waits for in-flight reconciliations
	// before abandoning them; zero abandons immediately.
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config) *Executor {
	e := &Executor{
		reconciler:      cfg.Reconciler,
		bus:             cfg.Bus,
		channel:         cfg.Channel,
		backoff:         cfg.RetryBackoff,
		drainTimeout:    cfg.DrainTimeout,
		logger:          cfg.Logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
	if cfg.DedupTTL > 0 {
		e.claims = NewClaims(cfg.DedupTTL)
	}
	return e
}

// Run starts the executor's main loop. It dispatches opportunities until the
// context is cancelled, then drains or abandons the reconciliations still in
// flight and returns.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started",
		slog.String("channel", e.channel),
		slog.Bool("dedup", e.claims != nil),
	)
	defer e.logger.Info("executor stopped")

	// Tasks outlive the listener so shutdown can choose to wait for them.
	tasks := NewTaskSet(context.WithoutCancel(ctx), e.logger)

	if e.claims != nil {
		go e.cleanupLoop(ctx)
	}

	l := bus.NewListener(e.bus, e.channel, e.backoff, e.logger)
	err := l.Run(ctx, func(ctx context.Context, data []byte) error {
		return e.dispatch(tasks, data)
	})

	e.shutdown(tasks)
	return err
}

// dispatch validates one payload and schedules its reconciliation.
func (e *Executor) dispatch(tasks *TaskSet, data []byte) error {
	opp, err := domain.DecodeArbRecord(data)
	if err != nil {
		return err
	}
	if opp.Status != domain.ArbStatusDetected {
		return fmt.Errorf("%w: expected status detected, got %q", domain.ErrInvalidEvent, opp.Status)
	}
	if e.claims != nil && !e.claims.Claim(opp.ID) {
		DuplicatesTotal.Inc()
		status, _ := e.claims.Status(opp.ID)
		e.logger.Debug("duplicate opportunity ignored",
			slog.String("id", opp.ID),
			slog.String("status", string(status)),
		)
		return nil
	}

	tasks.Go(opp.ID, func(ctx context.Context) error {
		exec, err := e.reconciler.Reconcile(ctx, opp)
		if e.claims != nil {
			if err != nil {
				// No execution record went out; a redelivery may retry.
				e.claims.Release(opp.ID)
			} else {
				e.claims.Settle(opp.ID, exec.Status)
			}
		}
		return err
	})
	return nil
}

func (e *Executor) shutdown(tasks *TaskSet) {
	if e.drainTimeout > 0 && tasks.Running() > 0 {
		e.logger.Info("waiting for in-flight reconciliations",
			slog.Int("running", tasks.Running()),
			slog.Duration("timeout", e.drainTimeout),
		)
		done := make(chan struct{})
		go func() {
			_ = tasks.Wait()
			close(done)
		}()
		t := time.NewTimer(e.drainTimeout)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
		}
	}

	if n := tasks.Running(); n > 0 {
		e.logger.Warn("abandoning in-flight reconciliations", slog.Int("running", n))
	}
	tasks.Abandon()
	if err := tasks.Wait(); err != nil {
		e.logger.Warn("reconciliation failures during run", slog.String("error", err.Error()))
	}
}

func (e *Executor) cleanupLoop(ctx context.Context) {
	t := time.NewTicker(e.cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.claims.Cleanup()
		}
	}
}
