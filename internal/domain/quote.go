package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Odds is a bookmaker's decimal price pair for a two-way market.
type Odds struct {
	HomeWin float64 `json:"home_win"`
	AwayWin float64 `json:"away_win"`
}

// Validate reports ErrInvalidOdds unless both prices are finite and above 1.0.
func (o Odds) Validate() error {
	if !validPrice(o.HomeWin) {
		return fmt.Errorf("%w: home_win=%v", ErrInvalidOdds, o.HomeWin)
	}
	if !validPrice(o.AwayWin) {
		return fmt.Errorf("%w: away_win=%v", ErrInvalidOdds, o.AwayWin)
	}
	return nil
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 1.0
}

// Quote is the latest known price from one bookmaker for one match.
type Quote struct {
	Match     string
	Bookmaker string
	Odds      Odds
}

// QuoteSnapshot is every cached quote for a single match, keyed by bookmaker
// display name. Entries that could not be decoded land in Invalid instead.
type QuoteSnapshot struct {
	Match   string
	Quotes  map[string]Odds
	Invalid map[string]error
}

// Empty is true when no bookmaker has live odds for the match.
func (s QuoteSnapshot) Empty() bool {
	return len(s.Quotes) == 0
}

// QuoteEvent is the kind of quote update published by the feed.
type QuoteEvent string

const (
	QuoteEventUpdate QuoteEvent = "odds_update"
	QuoteEventClose  QuoteEvent = "odds_close"
)

// OddsUpdate is the message published on the odds channel whenever a
// bookmaker changes or withdraws its prices. Odds is nil iff Event is
// QuoteEventClose.
type OddsUpdate struct {
	Event     QuoteEvent `json:"event"`
	Match     string     `json:"match"`
	Bookmaker string     `json:"bookmaker"`
	Odds      *Odds      `json:"odds"`
	Timestamp int64      `json:"timestamp"`
}

// NewOddsUpdate builds an odds_update event for q stamped with now.
func NewOddsUpdate(q Quote, now time.Time) OddsUpdate {
	odds := q.Odds
	return OddsUpdate{
		Event:     QuoteEventUpdate,
		Match:     q.Match,
		Bookmaker: q.Bookmaker,
		Odds:      &odds,
		Timestamp: now.UnixMilli(),
	}
}

// NewOddsClose builds an odds_close event for the given market.
func NewOddsClose(match, bookmaker string, now time.Time) OddsUpdate {
	return OddsUpdate{
		Event:     QuoteEventClose,
		Match:     match,
		Bookmaker: bookmaker,
		Timestamp: now.UnixMilli(),
	}
}

// Validate checks the event shape. Errors wrap ErrInvalidEvent.
func (u OddsUpdate) Validate() error {
	if strings.TrimSpace(u.Match) == "" {
		return fmt.Errorf("%w: match is empty", ErrInvalidEvent)
	}
	if strings.TrimSpace(u.Bookmaker) == "" {
		return fmt.Errorf("%w: bookmaker is empty", ErrInvalidEvent)
	}
	switch u.Event {
	case QuoteEventUpdate:
		if u.Odds == nil {
			return fmt.Errorf("%w: odds_update without odds", ErrInvalidEvent)
		}
		if err := u.Odds.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
	case QuoteEventClose:
		if u.Odds != nil {
			return fmt.Errorf("%w: odds_close with odds", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, u.Event)
	}
	return nil
}

// Quote returns the live quote carried by the update. ok is false for close
// events.
func (u OddsUpdate) Quote() (q Quote, ok bool) {
	if u.Odds == nil {
		return Quote{}, false
	}
	return Quote{Match: u.Match, Bookmaker: u.Bookmaker, Odds: *u.Odds}, true
}

// DecodeOddsUpdate parses and validates a raw odds channel payload.
func DecodeOddsUpdate(data []byte) (OddsUpdate, error) {
	var u OddsUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return OddsUpdate{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := u.Validate(); err != nil {
		return OddsUpdate{}, err
	}
	return u, nil
}
