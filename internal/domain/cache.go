package domain

import (
	"context"
	"time"
)

// QuoteStore holds the latest quote per (match, bookmaker). A missing entry
// means the bookmaker's market for that match is closed.
type QuoteStore interface {
	Get(ctx context.Context, match string) (QuoteSnapshot, error)
	// GetOne returns ErrNotFound when the market is closed.
	GetOne(ctx context.Context, match, bookmaker string) (Odds, error)
	Set(ctx context.Context, q Quote) error
	Delete(ctx context.Context, match, bookmaker string) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads. The channel is closed when ctx
	// ends or the underlying connection fails; callers resubscribe.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter admits at most limit requests per key within a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out short-lived exclusive locks shared across processes.
type LockManager interface {
	// Acquire returns ErrLockHeld when another holder owns key. The returned
	// func releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
