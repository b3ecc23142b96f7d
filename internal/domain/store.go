package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OddsSnapshot is one row of the odds history table.
type OddsSnapshot struct {
	ID         int64
	Match      string
	Bookmaker  string
	HomeWin    float64
	AwayWin    float64
	Actionable bool
	CreatedAt  time.Time
}

// OddsHistoryStore persists every published quote for later analysis.
type OddsHistoryStore interface {
	Insert(ctx context.Context, q Quote, at time.Time) error
	ListByMatch(ctx context.Context, match string, opts ListOpts) ([]OddsSnapshot, error)
}

// ProfitSummary aggregates terminal executions.
type ProfitSummary struct {
	Executions  int64
	Completed   int64
	Adjusted    int64
	Cancelled   int64
	TotalStaked float64
	TotalProfit float64
}

// ArbStore persists arbitrage records and their execution outcome.
type ArbStore interface {
	// InsertDetected stores a new opportunity; a duplicate id is ignored.
	InsertDetected(ctx context.Context, rec ArbRecord) error
	// ApplyExecution records the terminal outcome of a stored opportunity,
	// inserting the row if the detection was never seen.
	ApplyExecution(ctx context.Context, rec ArbRecord) error
	GetByID(ctx context.Context, id string) (ArbRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ArbRecord, error)
	ListExecutedBefore(ctx context.Context, before time.Time) ([]ArbRecord, error)
	DeleteExecutedBefore(ctx context.Context, before time.Time) (int64, error)
	Profit(ctx context.Context) (ProfitSummary, error)
}

// AuditStore appends to the audit log table.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
