package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbbot/internal/arbitrage"
	"github.com/alanyoungcy/arbbot/internal/domain"
)

// Reconciler re-validates a detected opportunity against live quotes after a
// fixed delay and publishes the terminal execution record.
type Reconciler struct {
	quotes  domain.QuoteStore
	bus     domain.SignalBus
	channel string
	delay   time.Duration
	logger  *slog.Logger
}

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	Quotes  domain.QuoteStore
	Bus     domain.SignalBus
	Channel string
	Delay   time.Duration
	Logger  *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		quotes:  cfg.Quotes,
		bus:     cfg.Bus,
		channel: cfg.Channel,
		delay:   cfg.Delay,
		logger:  cfg.Logger.With(slog.String("component", "arb_reconciler")),
	}
}

// Reconcile waits the configured delay, re-reads both legs' quotes, and
// publishes exactly one execution record for opp. If ctx ends during the
// delay the reconciliation is abandoned and nothing is published.
func (r *Reconciler) Reconcile(ctx context.Context, opp domain.ArbRecord) (domain.ArbRecord, error) {
	log := r.logger.With(
		slog.String("id", opp.ID),
		slog.String("match", opp.Match),
	)
	log.DebugContext(ctx, "waiting before execution", slog.Duration("delay", r.delay))

	t := time.NewTimer(r.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return domain.ArbRecord{}, ctx.Err()
	case <-t.C:
	}

	home := r.latestOdds(ctx, log, opp.Match, opp.HomeBookmaker, true)
	away := r.latestOdds(ctx, log, opp.Match, opp.AwayBookmaker, false)
	exec := Classify(opp, home, away)

	payload, err := json.Marshal(exec)
	if err != nil {
		return exec, fmt.Errorf("reconciler: marshal %s: %w", exec.ID, err)
	}
	if err := r.bus.Publish(ctx, r.channel, payload); err != nil {
		return exec, fmt.Errorf("reconciler: publish %s: %w", exec.ID, err)
	}

	ExecutionsTotal.WithLabelValues(string(exec.Status)).Inc()
	RealizedProfit.Observe(exec.GuaranteedProfit)
	switch exec.Status {
	case domain.ArbStatusCompleted:
		log.InfoContext(ctx, "arb executed", slog.Float64("guaranteed_profit", exec.GuaranteedProfit))
	case domain.ArbStatusAdjusted:
		log.InfoContext(ctx, "arb executed with adjusted odds", slog.Float64("guaranteed_profit", exec.GuaranteedProfit))
	case domain.ArbStatusCancelled:
		log.InfoContext(ctx, "arb cancelled",
			slog.Bool("home_closed", exec.HomeOdds == nil),
			slog.Bool("away_closed", exec.AwayOdds == nil),
			slog.Float64("guaranteed_profit", exec.GuaranteedProfit),
		)
	}
	return exec, nil
}

// latestOdds returns the current price for one leg, or nil when the
// bookmaker's market is closed. A read failure is treated as a closed market
// so the opportunity still reaches a terminal state.
func (r *Reconciler) latestOdds(ctx context.Context, log *slog.Logger, match, bookmaker string, homeSide bool) *float64 {
	odds, err := r.quotes.GetOne(ctx, match, bookmaker)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.WarnContext(ctx, "quote unavailable, treating market as closed",
				slog.String("bookmaker", bookmaker),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	if homeSide {
		return domain.Float64(odds.HomeWin)
	}
	return domain.Float64(odds.AwayWin)
}

// Classify builds the execution record for opp given the re-fetched odds of
// each leg (nil when that market closed). A closed leg has its stake zeroed.
// Status is cancelled if either leg closed, adjusted if either price moved,
// completed otherwise. Prices are compared exactly.
func Classify(opp domain.ArbRecord, home, away *float64) domain.ArbRecord {
	out := opp.Clone()
	changed := !sameOdds(opp.HomeOdds, home) || !sameOdds(opp.AwayOdds, away)

	out.HomeOdds, out.AwayOdds = nil, nil
	if home != nil {
		out.HomeOdds = domain.Float64(*home)
	} else {
		out.HomeStake = 0
	}
	if away != nil {
		out.AwayOdds = domain.Float64(*away)
	} else {
		out.AwayStake = 0
	}

	switch {
	case home == nil || away == nil:
		out.Status = domain.ArbStatusCancelled
	case changed:
		out.Status = domain.ArbStatusAdjusted
	default:
		out.Status = domain.ArbStatusCompleted
	}
	out.GuaranteedProfit = arbitrage.GuaranteedProfit(out.HomeStake, out.HomeOdds, out.AwayStake, out.AwayOdds)
	return out
}

func sameOdds(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
