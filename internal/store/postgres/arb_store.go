package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// ArbStore implements domain.ArbStore using the arb_history table. One row
// holds an opportunity from detection through its terminal execution.
type ArbStore struct {
	pool *pgxpool.Pool
}

// NewArbStore creates a new ArbStore backed by the given connection pool.
func NewArbStore(pool *pgxpool.Pool) *ArbStore {
	return &ArbStore{pool: pool}
}

const arbSelectCols = `id, match, home_bookmaker, away_bookmaker,
	home_odds, away_odds, home_stake, away_stake,
	guaranteed_profit, status, detected_at`

// InsertDetected stores a new opportunity. A row with the same id is left
// untouched.
func (s *ArbStore) InsertDetected(ctx context.Context, rec domain.ArbRecord) error {
	const query = `
		INSERT INTO arb_history (
			id, match, home_bookmaker, away_bookmaker,
			detected_home_odds, detected_away_odds, detected_profit,
			home_odds, away_odds, home_stake, away_stake,
			guaranteed_profit, status, detected_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$5, $6, $8, $9,
			$7, $10, $11
		)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Match, rec.HomeBookmaker, rec.AwayBookmaker,
		rec.HomeOdds, rec.AwayOdds, rec.GuaranteedProfit,
		rec.HomeStake, rec.AwayStake,
		string(rec.Status), time.UnixMilli(rec.Timestamp).UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arb %s: %w", rec.ID, err)
	}
	return nil
}

// ApplyExecution records the terminal outcome for rec.ID. If the detection
// row is missing it is created from rec. A row that already holds a terminal
// status is not changed.
func (s *ArbStore) ApplyExecution(ctx context.Context, rec domain.ArbRecord) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("postgres: apply execution %s: status %q is not terminal", rec.ID, rec.Status)
	}

	const query = `
		INSERT INTO arb_history (
			id, match, home_bookmaker, away_bookmaker,
			home_odds, away_odds, home_stake, away_stake,
			guaranteed_profit, status, detected_at, executed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			home_odds         = EXCLUDED.home_odds,
			away_odds         = EXCLUDED.away_odds,
			home_stake        = EXCLUDED.home_stake,
			away_stake        = EXCLUDED.away_stake,
			guaranteed_profit = EXCLUDED.guaranteed_profit,
			status            = EXCLUDED.status,
			executed_at       = EXCLUDED.executed_at
		WHERE arb_history.status = 'detected'`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Match, rec.HomeBookmaker, rec.AwayBookmaker,
		rec.HomeOdds, rec.AwayOdds, rec.HomeStake, rec.AwayStake,
		rec.GuaranteedProfit, string(rec.Status), time.UnixMilli(rec.Timestamp).UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: apply execution %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID returns the current state of one opportunity.
func (s *ArbStore) GetByID(ctx context.Context, id string) (domain.ArbRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+arbSelectCols+` FROM arb_history WHERE id = $1`, id)
	rec, err := scanArb(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbRecord{}, domain.ErrNotFound
		}
		return domain.ArbRecord{}, fmt.Errorf("postgres: get arb %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns the most recent opportunities ordered by detection time.
func (s *ArbStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbRecord, error) {
	query := `SELECT ` + arbSelectCols + ` FROM arb_history ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.list(ctx, "list recent arbs", query, args...)
}

// ListExecutedBefore returns terminal records executed before the cutoff,
// oldest first.
func (s *ArbStore) ListExecutedBefore(ctx context.Context, before time.Time) ([]domain.ArbRecord, error) {
	query := `SELECT ` + arbSelectCols + ` FROM arb_history
		WHERE status <> 'detected' AND executed_at < $1
		ORDER BY executed_at ASC`
	return s.list(ctx, "list executed arbs", query, before.UTC())
}

// DeleteExecutedBefore removes terminal records executed before the cutoff.
func (s *ArbStore) DeleteExecutedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM arb_history WHERE status <> 'detected' AND executed_at < $1`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executed arbs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Profit aggregates every terminal execution.
func (s *ArbStore) Profit(ctx context.Context) (domain.ProfitSummary, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'adjusted'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(home_stake + away_stake), 0),
			COALESCE(SUM(guaranteed_profit), 0)
		FROM arb_history
		WHERE status <> 'detected'`

	var p domain.ProfitSummary
	err := s.pool.QueryRow(ctx, query).Scan(
		&p.Executions, &p.Completed, &p.Adjusted, &p.Cancelled,
		&p.TotalStaked, &p.TotalProfit,
	)
	if err != nil {
		return domain.ProfitSummary{}, fmt.Errorf("postgres: arb profit: %w", err)
	}
	return p, nil
}

func (s *ArbStore) list(ctx context.Context, op, query string, args ...any) ([]domain.ArbRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.ArbRecord
	for rows.Next() {
		rec, err := scanArb(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan arb: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

func scanArb(row pgx.Row) (domain.ArbRecord, error) {
	var rec domain.ArbRecord
	var status string
	var detectedAt time.Time
	if err := row.Scan(
		&rec.ID, &rec.Match, &rec.HomeBookmaker, &rec.AwayBookmaker,
		&rec.HomeOdds, &rec.AwayOdds, &rec.HomeStake, &rec.AwayStake,
		&rec.GuaranteedProfit, &status, &detectedAt,
	); err != nil {
		return domain.ArbRecord{}, err
	}
	rec.Status = domain.ArbStatus(status)
	rec.Timestamp = detectedAt.UnixMilli()
	return rec, nil
}

// Compile-time interface check.
var _ domain.ArbStore = (*ArbStore)(nil)
