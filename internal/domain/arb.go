package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ArbStatus is the lifecycle state of an arbitrage record.
type ArbStatus string

const (
	ArbStatusDetected  ArbStatus = "detected"
	ArbStatusCompleted ArbStatus = "completed"
	ArbStatusAdjusted  ArbStatus = "adjusted"
	ArbStatusCancelled ArbStatus = "cancelled"
)

// Terminal reports whether s is an execution outcome.
func (s ArbStatus) Terminal() bool {
	switch s {
	case ArbStatusCompleted, ArbStatusAdjusted, ArbStatusCancelled:
		return true
	}
	return false
}

func (s ArbStatus) valid() bool {
	return s == ArbStatusDetected || s.Terminal()
}

// ArbRecord is a two-way arbitrage opportunity. The detector publishes it
// with status detected; the executor republishes the same id once with a
// terminal status. Odds are nil on a side whose market closed before
// execution.
type ArbRecord struct {
	ID               string    `json:"id"`
	Match            string    `json:"match"`
	HomeBookmaker    string    `json:"home_win_bookmaker"`
	AwayBookmaker    string    `json:"away_win_bookmaker"`
	HomeOdds         *float64  `json:"home_win_odds"`
	AwayOdds         *float64  `json:"away_win_odds"`
	HomeStake        float64   `json:"home_win_stake"`
	AwayStake        float64   `json:"away_win_stake"`
	GuaranteedProfit float64   `json:"guaranteed_profit"`
	Status           ArbStatus `json:"status"`
	Timestamp        int64     `json:"timestamp"`
}

// Float64 returns a pointer to v, for populating nullable odds.
func Float64(v float64) *float64 {
	return &v
}

// Clone returns a deep copy of r so the nullable odds are not shared.
func (r ArbRecord) Clone() ArbRecord {
	out := r
	if r.HomeOdds != nil {
		out.HomeOdds = Float64(*r.HomeOdds)
	}
	if r.AwayOdds != nil {
		out.AwayOdds = Float64(*r.AwayOdds)
	}
	return out
}

// TotalStake is the combined stake across both legs.
func (r ArbRecord) TotalStake() float64 {
	return r.HomeStake + r.AwayStake
}

// Validate checks the record shape. A detected record must carry both odds.
// Errors wrap ErrInvalidEvent.
func (r ArbRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("%w: id is empty", ErrInvalidEvent)
	case strings.TrimSpace(r.Match) == "":
		return fmt.Errorf("%w: match is empty", ErrInvalidEvent)
	case r.HomeBookmaker == "" || r.AwayBookmaker == "":
		return fmt.Errorf("%w: bookmaker is empty", ErrInvalidEvent)
	case r.HomeBookmaker == r.AwayBookmaker:
		return fmt.Errorf("%w: bookmaker %q on both sides", ErrInvalidEvent, r.HomeBookmaker)
	case !r.Status.valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, r.Status)
	case r.HomeStake < 0 || r.AwayStake < 0:
		return fmt.Errorf("%w: negative stake", ErrInvalidEvent)
	}
	if r.Status == ArbStatusDetected {
		if r.HomeOdds == nil || r.AwayOdds == nil {
			return fmt.Errorf("%w: detected record without odds", ErrInvalidEvent)
		}
		odds := Odds{HomeWin: *r.HomeOdds, AwayWin: *r.AwayOdds}
		if err := odds.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
	}
	return nil
}

// DecodeArbRecord parses and validates a raw arbitrage channel payload.
func DecodeArbRecord(data []byte) (ArbRecord, error) {
	var r ArbRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return ArbRecord{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := r.Validate(); err != nil {
		return ArbRecord{}, err
	}
	return r, nil
}
