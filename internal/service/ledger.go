// Package service holds the downstream consumers of the arbitrage pipeline.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbbot/internal/bus"
	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/notify"
)

// LedgerConfig wires a Ledger. Arbs, Audit and Notifier are optional.
type LedgerConfig struct {
	Bus              domain.SignalBus
	Arbs             domain.ArbStore
	Audit            domain.AuditStore
	Notifier         *notify.Notifier
	DetectionChannel string
	ExecutionChannel string
	AuditStream      string
	RetryBackoff     time.Duration
	Logger           *slog.Logger
}

// Ledger records every detection and execution: the opportunity row in
// Postgres, an audit log entry, the raw payload on the audit stream, and an
// operator alert for terminal outcomes.
type Ledger struct {
	cfg    LedgerConfig
	logger *slog.Logger
}

// NewLedger creates a Ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// Run consumes both channels until ctx is cancelled.
func (l *Ledger) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bus.NewListener(l.cfg.Bus, l.cfg.DetectionChannel, l.cfg.RetryBackoff, l.logger).
			Run(gctx, l.HandleDetection)
	})
	g.Go(func() error {
		return bus.NewListener(l.cfg.Bus, l.cfg.ExecutionChannel, l.cfg.RetryBackoff, l.logger).
			Run(gctx, l.HandleExecution)
	})
	return g.Wait()
}

// HandleDetection records a newly detected opportunity.
func (l *Ledger) HandleDetection(ctx context.Context, payload []byte) error {
	rec, err := domain.DecodeArbRecord(payload)
	if err != nil {
		LedgerEventsTotal.WithLabelValues("detection", "invalid").Inc()
		return fmt.Errorf("ledger: decode detection: %w", err)
	}
	if rec.Status != domain.ArbStatusDetected {
		LedgerEventsTotal.WithLabelValues("detection", "invalid").Inc()
		return fmt.Errorf("ledger: detection %s: %w: status %q", rec.ID, domain.ErrInvalidEvent, rec.Status)
	}

	if l.cfg.Arbs != nil {
		if err := l.cfg.Arbs.InsertDetected(ctx, rec); err != nil {
			LedgerEventsTotal.WithLabelValues("detection", "error").Inc()
			return fmt.Errorf("ledger: %w", err)
		}
	}
	l.record(ctx, "arb.detected", rec, payload)
	LedgerEventsTotal.WithLabelValues("detection", "ok").Inc()
	return nil
}

// HandleExecution records the terminal outcome of an opportunity and alerts
// the operator.
func (l *Ledger) HandleExecution(ctx context.Context, payload []byte) error {
	rec, err := domain.DecodeArbRecord(payload)
	if err != nil {
		LedgerEventsTotal.WithLabelValues("execution", "invalid").Inc()
		return fmt.Errorf("ledger: decode execution: %w", err)
	}
	if !rec.Status.Terminal() {
		LedgerEventsTotal.WithLabelValues("execution", "invalid").Inc()
		return fmt.Errorf("ledger: execution %s: %w: status %q", rec.ID, domain.ErrInvalidEvent, rec.Status)
	}

	if l.cfg.Arbs != nil {
		if err := l.cfg.Arbs.ApplyExecution(ctx, rec); err != nil {
			LedgerEventsTotal.WithLabelValues("execution", "error").Inc()
			return fmt.Errorf("ledger: %w", err)
		}
	}
	l.record(ctx, "arb.executed", rec, payload)

	if err := l.cfg.Notifier.NotifyExecution(ctx, rec); err != nil {
		l.logger.WarnContext(ctx, "execution alert failed",
			slog.String("id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
	LedgerEventsTotal.WithLabelValues("execution", "ok").Inc()
	return nil
}

// record writes the audit trail. Failures are logged; the store row is the
// source of truth.
func (l *Ledger) record(ctx context.Context, event string, rec domain.ArbRecord, payload []byte) {
	if l.cfg.Audit != nil {
		detail := map[string]any{
			"id":                rec.ID,
			"match":             rec.Match,
			"status":            string(rec.Status),
			"guaranteed_profit": rec.GuaranteedProfit,
		}
		if err := l.cfg.Audit.Log(ctx, event, detail); err != nil {
			l.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", event),
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if l.cfg.AuditStream != "" {
		if err := l.cfg.Bus.StreamAppend(ctx, l.cfg.AuditStream, payload); err != nil {
			l.logger.WarnContext(ctx, "audit stream append failed",
				slog.String("stream", l.cfg.AuditStream),
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	l.logger.InfoContext(ctx, "arbitrage recorded",
		slog.String("event", event),
		slog.String("id", rec.ID),
		slog.String("match", rec.Match),
		slog.String("status", string(rec.Status)),
		slog.Float64("guaranteed_profit", rec.GuaranteedProfit),
	)
}
