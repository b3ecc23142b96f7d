package arbitrage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/arbbot/internal/bus"
	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/google/uuid"
)

// Detector pairs each incoming quote against every other bookmaker's cached
// quote for the same match and publishes the profitable pairings.
type Detector struct {
	quotes      domain.QuoteStore
	bus         domain.SignalBus
	oddsChannel string
	arbChannel  string
	totalStake  float64
	backoff     time.Duration
	newID       func() string
	now         func() time.Time
	logger      *slog.Logger
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Quotes       domain.QuoteStore
	Bus          domain.SignalBus
	OddsChannel  string
	ArbChannel   string
	TotalStake   float64
	RetryBackoff time.Duration
	Logger       *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{
		quotes:      cfg.Quotes,
		bus:         cfg.Bus,
		oddsChannel: cfg.OddsChannel,
		arbChannel:  cfg.ArbChannel,
		totalStake:  cfg.TotalStake,
		backoff:     cfg.RetryBackoff,
		newID:       uuid.NewString,
		now:         time.Now,
		logger:      cfg.Logger.With(slog.String("component", "arb_detector")),
	}
}

// Run listens on the odds channel and handles each update in arrival order.
// It blocks until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("arb detector started",
		slog.String("channel", d.oddsChannel),
		slog.Float64("total_stake", d.totalStake),
	)
	defer d.logger.Info("arb detector stopped")

	l := bus.NewListener(d.bus, d.oddsChannel, d.backoff, d.logger)
	return l.Run(ctx, d.handleMessage)
}

func (d *Detector) handleMessage(ctx context.Context, data []byte) error {
	update, err := domain.DecodeOddsUpdate(data)
	if err != nil {
		return err
	}
	_, err = d.Detect(ctx, update)
	return err
}

// Detect evaluates one quote update against the cached quotes for its match
// and publishes an opportunity for every accepted pairing. It returns the
// published records.
func (d *Detector) Detect(ctx context.Context, update domain.OddsUpdate) ([]domain.ArbRecord, error) {
	start := time.Now()
	QuoteUpdatesTotal.WithLabelValues(string(update.Event)).Inc()

	quote, ok := update.Quote()
	if !ok {
		return nil, nil
	}

	snap, err := d.quotes.Get(ctx, update.Match)
	if err != nil {
		return nil, fmt.Errorf("arb detector: load quotes %s: %w", update.Match, err)
	}
	for bookmaker, qerr := range snap.Invalid {
		InvalidQuotesTotal.Inc()
		d.logger.WarnContext(ctx, "skipping malformed cached quote",
			slog.String("match", update.Match),
			slog.String("bookmaker", bookmaker),
			slog.String("error", qerr.Error()),
		)
	}
	if snap.Empty() {
		d.logger.DebugContext(ctx, "no cached odds for match", slog.String("match", update.Match))
		return nil, nil
	}

	pairings := FindPairings(quote, snap)
	records := make([]domain.ArbRecord, 0, len(pairings))
	for _, p := range pairings {
		rec := d.newRecord(update.Match, p)
		if err := d.publish(ctx, rec); err != nil {
			return records, err
		}
		OpportunitiesDetectedTotal.Inc()
		OpportunityMargin.Observe(p.Margin())
		d.logger.InfoContext(ctx, "arbitrage detected",
			slog.String("id", rec.ID),
			slog.String("match", rec.Match),
			slog.String("home_bookmaker", rec.HomeBookmaker),
			slog.String("away_bookmaker", rec.AwayBookmaker),
			slog.Float64("margin", p.Margin()),
			slog.Float64("guaranteed_profit", rec.GuaranteedProfit),
		)
		records = append(records, rec)
	}

	DetectionDurationSeconds.Observe(time.Since(start).Seconds())
	return records, nil
}

// FindPairings returns the profitable pairings between the updating quote
// and the other bookmakers in snap. Bookmakers are visited in name order. For
// each one the pairing with the updating bookmaker on the home side is tried
// first, then the reverse. A bookmaker appears in at most one accepted
// pairing, and the updating bookmaker is never paired with itself.
func FindPairings(updated domain.Quote, snap domain.QuoteSnapshot) []Pairing {
	others := make([]string, 0, len(snap.Quotes))
	for bookmaker := range snap.Quotes {
		others = append(others, bookmaker)
	}
	sort.Strings(others)

	consumed := map[string]bool{updated.Bookmaker: true}
	var out []Pairing
	for _, b := range others {
		if consumed[b] {
			continue
		}
		cached := snap.Quotes[b]
		candidates := [2]Pairing{
			{
				HomeBookmaker: updated.Bookmaker,
				AwayBookmaker: b,
				HomeOdds:      updated.Odds.HomeWin,
				AwayOdds:      cached.AwayWin,
			},
			{
				HomeBookmaker: b,
				AwayBookmaker: updated.Bookmaker,
				HomeOdds:      cached.HomeWin,
				AwayOdds:      updated.Odds.AwayWin,
			},
		}
		for _, p := range candidates {
			if p.IsNetGain() {
				out = append(out, p)
				consumed[p.HomeBookmaker] = true
				consumed[p.AwayBookmaker] = true
				break
			}
		}
	}
	return out
}

func (d *Detector) newRecord(match string, p Pairing) domain.ArbRecord {
	homeStake, awayStake := p.Stakes(d.totalStake)
	homeOdds, awayOdds := domain.Float64(p.HomeOdds), domain.Float64(p.AwayOdds)
	return domain.ArbRecord{
		ID:               d.newID(),
		Match:            match,
		HomeBookmaker:    p.HomeBookmaker,
		AwayBookmaker:    p.AwayBookmaker,
		HomeOdds:         homeOdds,
		AwayOdds:         awayOdds,
		HomeStake:        homeStake,
		AwayStake:        awayStake,
		GuaranteedProfit: GuaranteedProfit(homeStake, homeOdds, awayStake, awayOdds),
		Status:           domain.ArbStatusDetected,
		Timestamp:        d.now().UnixMilli(),
	}
}

func (d *Detector) publish(ctx context.Context, rec domain.ArbRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("arb detector: marshal %s: %w", rec.ID, err)
	}
	if err := d.bus.Publish(ctx, d.arbChannel, payload); err != nil {
		return fmt.Errorf("arb detector: publish %s: %w", rec.ID, err)
	}
	return nil
}
