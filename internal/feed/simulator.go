// Package feed produces bookmaker odds. The Simulator stands in for real
// bookmaker scrapers: it randomly updates, keeps or closes each market and
// publishes the result exactly the way a live feed would.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// Action is the simulator's decision for one market in one round.
type Action int

const (
	ActionKeep Action = iota
	ActionUpdate
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionUpdate:
		return "update"
	case ActionClose:
		return "close"
	default:
		return "keep"
	}
}

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	Quotes      domain.QuoteStore
	Bus         domain.SignalBus
	History     domain.OddsHistoryStore // optional
	Channel     string
	Interval    time.Duration
	UpdateProb  float64
	CloseProb   float64
	Vig         float64
	HomeOddsMin float64
	HomeOddsMax float64
	Matches     []string
	Bookmakers  []string
	Seed        int64 // 0 draws a random seed
	Logger      *slog.Logger
}

type marketKey struct {
	match     string
	bookmaker string
}

// Simulator publishes randomised two-way odds for a fixed set of matches and
// bookmakers.
type Simulator struct {
	cfg    SimulatorConfig
	rng    *rand.Rand
	open   map[marketKey]bool
	now    func() time.Time
	logger *slog.Logger
}

// NewSimulator creates a Simulator. It is not safe for concurrent use; Run
// drives it from a single goroutine.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	seed := uint64(cfg.Seed)
	if cfg.Seed == 0 {
		seed = rand.Uint64()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		open:   make(map[marketKey]bool),
		now:    time.Now,
		logger: logger.With(slog.String("component", "odds_feed")),
	}
}

// Run executes a round immediately and then once per interval until ctx is
// done.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "odds feed started",
		slog.Int("matches", len(s.cfg.Matches)),
		slog.Int("bookmakers", len(s.cfg.Bookmakers)),
		slog.Duration("interval", s.cfg.Interval),
	)
	defer s.logger.Info("odds feed stopped")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.Round(ctx); err != nil {
			s.logger.WarnContext(ctx, "odds feed round failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Round decides and applies one action for every (match, bookmaker) pair.
// It keeps going after a failed market and returns the first error.
func (s *Simulator) Round(ctx context.Context) error {
	var first error
	for _, match := range s.cfg.Matches {
		for _, bookmaker := range s.cfg.Bookmakers {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var err error
			switch s.nextAction() {
			case ActionUpdate:
				err = s.Update(ctx, match, bookmaker, s.generateOdds())
			case ActionClose:
				err = s.Close(ctx, match, bookmaker)
			}
			if err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Update stores new odds for a market and announces them.
func (s *Simulator) Update(ctx context.Context, match, bookmaker string, odds domain.Odds) error {
	q := domain.Quote{Match: match, Bookmaker: bookmaker, Odds: odds}
	if err := s.cfg.Quotes.Set(ctx, q); err != nil {
		return fmt.Errorf("feed: update %s/%s: %w", match, bookmaker, err)
	}
	s.open[marketKey{match, bookmaker}] = true

	now := s.now()
	if err := s.publish(ctx, domain.NewOddsUpdate(q, now)); err != nil {
		return err
	}
	if s.cfg.History != nil {
		if err := s.cfg.History.Insert(ctx, q, now); err != nil {
			s.logger.WarnContext(ctx, "record odds history failed",
				slog.String("match", match),
				slog.String("bookmaker", bookmaker),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.DebugContext(ctx, "odds updated",
		slog.String("match", match),
		slog.String("bookmaker", bookmaker),
		slog.Float64("home_win", odds.HomeWin),
		slog.Float64("away_win", odds.AwayWin),
	)
	return nil
}

// Close withdraws a market. Markets that are not open are left alone.
func (s *Simulator) Close(ctx context.Context, match, bookmaker string) error {
	key := marketKey{match, bookmaker}
	if !s.open[key] {
		return nil
	}
	if err := s.cfg.Quotes.Delete(ctx, match, bookmaker); err != nil {
		return fmt.Errorf("feed: close %s/%s: %w", match, bookmaker, err)
	}
	delete(s.open, key)

	if err := s.publish(ctx, domain.NewOddsClose(match, bookmaker, s.now())); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "odds closed",
		slog.String("match", match),
		slog.String("bookmaker", bookmaker),
	)
	return nil
}

// IsOpen reports whether the simulator currently quotes the market.
func (s *Simulator) IsOpen(match, bookmaker string) bool {
	return s.open[marketKey{match, bookmaker}]
}

func (s *Simulator) publish(ctx context.Context, u domain.OddsUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("feed: marshal %s: %w", u.Event, err)
	}
	if err := s.cfg.Bus.Publish(ctx, s.cfg.Channel, data); err != nil {
		return fmt.Errorf("feed: publish %s: %w", u.Event, err)
	}
	return nil
}

func (s *Simulator) nextAction() Action {
	p := s.rng.Float64()
	switch {
	case p < s.cfg.UpdateProb:
		return ActionUpdate
	case p < s.cfg.UpdateProb+s.cfg.CloseProb:
		return ActionClose
	default:
		return ActionKeep
	}
}

func (s *Simulator) generateOdds() domain.Odds {
	span := s.cfg.HomeOddsMax - s.cfg.HomeOddsMin
	home := round2(s.cfg.HomeOddsMin + s.rng.Float64()*span)
	return domain.Odds{HomeWin: home, AwayWin: AwayOdds(home, s.cfg.Vig)}
}

// AwayOdds derives the away price that gives the book an overround of vig
// over the home price, rounded to two decimals.
func AwayOdds(home, vig float64) float64 {
	awayProb := 1 + vig - 1/home
	return round2(1 / awayProb)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
