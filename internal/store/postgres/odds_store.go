package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// OddsHistoryStore implements domain.OddsHistoryStore using the odds table.
type OddsHistoryStore struct {
	pool *pgxpool.Pool
}

// NewOddsHistoryStore creates a new OddsHistoryStore.
func NewOddsHistoryStore(pool *pgxpool.Pool) *OddsHistoryStore {
	return &OddsHistoryStore{pool: pool}
}

// Insert appends q to the history as an actionable quote observed at at.
func (s *OddsHistoryStore) Insert(ctx context.Context, q domain.Quote, at time.Time) error {
	const query = `
		INSERT INTO odds (match, bookmaker, home_win, away_win, actionable, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)`
	if _, err := s.pool.Exec(ctx, query, q.Match, q.Bookmaker, q.Odds.HomeWin, q.Odds.AwayWin, at.UTC()); err != nil {
		return fmt.Errorf("postgres: insert odds %s/%s: %w", q.Match, q.Bookmaker, err)
	}
	return nil
}

// ListByMatch returns the recorded quotes for match, newest first.
func (s *OddsHistoryStore) ListByMatch(ctx context.Context, match string, opts domain.ListOpts) ([]domain.OddsSnapshot, error) {
	query, args := listQuery(`
		SELECT id, match, bookmaker, home_win, away_win, actionable, created_at
		FROM odds WHERE match = $1`, []any{match}, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list odds %s: %w", match, err)
	}
	defer rows.Close()

	var out []domain.OddsSnapshot
	for rows.Next() {
		var o domain.OddsSnapshot
		if err := rows.Scan(&o.ID, &o.Match, &o.Bookmaker, &o.HomeWin, &o.AwayWin, &o.Actionable, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan odds: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list odds rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.OddsHistoryStore = (*OddsHistoryStore)(nil)
