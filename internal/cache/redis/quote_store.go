package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// QuoteStore implements domain.QuoteStore using one Redis hash per match.
// The hash lives at "odds:{match}" and maps each bookmaker to a JSON object
// {"home_win": ..., "away_win": ...}. Spaces in match and bookmaker names are
// stored as underscores; literal underscores and percent signs are
// percent-escaped so every name decodes back to itself.
type QuoteStore struct {
	rdb *redis.Client
}

// NewQuoteStore creates a QuoteStore backed by the given Client.
func NewQuoteStore(c *Client) *QuoteStore {
	return &QuoteStore{rdb: c.Underlying()}
}

var (
	nameEncoder = strings.NewReplacer("%", "%25", "_", "%5F", " ", "_")
	nameDecoder = strings.NewReplacer("%25", "%", "%5F", "_", "_", " ")
)

// QuoteKey returns the hash key holding every bookmaker's quote for match.
func QuoteKey(match string) string {
	return "odds:" + nameEncoder.Replace(match)
}

// BookmakerField encodes a bookmaker display name as a hash field.
func BookmakerField(bookmaker string) string {
	return nameEncoder.Replace(bookmaker)
}

// BookmakerName decodes a hash field back to the bookmaker display name.
func BookmakerName(field string) string {
	return nameDecoder.Replace(field)
}

// Get returns every cached quote for match. Entries that are not valid odds
// JSON are reported in the snapshot's Invalid map rather than failing the
// call.
func (s *QuoteStore) Get(ctx context.Context, match string) (domain.QuoteSnapshot, error) {
	vals, err := s.rdb.HGetAll(ctx, QuoteKey(match)).Result()
	if err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("redis: get quotes %s: %w", match, err)
	}

	snap := domain.QuoteSnapshot{
		Match:  match,
		Quotes: make(map[string]domain.Odds, len(vals)),
	}
	for field, raw := range vals {
		bookmaker := BookmakerName(field)
		odds, err := decodeOdds(raw)
		if err != nil {
			if snap.Invalid == nil {
				snap.Invalid = make(map[string]error)
			}
			snap.Invalid[bookmaker] = err
			continue
		}
		snap.Quotes[bookmaker] = odds
	}
	return snap, nil
}

// GetOne returns one bookmaker's quote for match, or domain.ErrNotFound when
// that market is closed.
func (s *QuoteStore) GetOne(ctx context.Context, match, bookmaker string) (domain.Odds, error) {
	raw, err := s.rdb.HGet(ctx, QuoteKey(match), BookmakerField(bookmaker)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Odds{}, domain.ErrNotFound
		}
		return domain.Odds{}, fmt.Errorf("redis: get quote %s/%s: %w", match, bookmaker, err)
	}
	odds, err := decodeOdds(raw)
	if err != nil {
		return domain.Odds{}, fmt.Errorf("redis: get quote %s/%s: %w", match, bookmaker, err)
	}
	return odds, nil
}

// Set stores q as the latest quote for its (match, bookmaker).
func (s *QuoteStore) Set(ctx context.Context, q domain.Quote) error {
	if err := q.Odds.Validate(); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", q.Match, q.Bookmaker, err)
	}
	data, err := json.Marshal(q.Odds)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s/%s: %w", q.Match, q.Bookmaker, err)
	}
	if err := s.rdb.HSet(ctx, QuoteKey(q.Match), BookmakerField(q.Bookmaker), data).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", q.Match, q.Bookmaker, err)
	}
	return nil
}

// Delete removes a bookmaker's quote, marking its market closed.
func (s *QuoteStore) Delete(ctx context.Context, match, bookmaker string) error {
	if err := s.rdb.HDel(ctx, QuoteKey(match), BookmakerField(bookmaker)).Err(); err != nil {
		return fmt.Errorf("redis: delete quote %s/%s: %w", match, bookmaker, err)
	}
	return nil
}

func decodeOdds(raw string) (domain.Odds, error) {
	var odds domain.Odds
	if err := json.Unmarshal([]byte(raw), &odds); err != nil {
		return domain.Odds{}, fmt.Errorf("%w: %w", domain.ErrInvalidOdds, err)
	}
	if err := odds.Validate(); err != nil {
		return domain.Odds{}, err
	}
	return odds, nil
}

// Compile-time interface check.
var _ domain.QuoteStore = (*QuoteStore)(nil)
