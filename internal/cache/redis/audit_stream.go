package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// auditStreamMaxLen caps the audit stream; XADD trims approximately.
const auditStreamMaxLen int64 = 10000

const recordField = "record"

// StreamAppend adds payload to the end of stream.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: auditStreamMaxLen,
		Approx: true,
		Values: []any{recordField, payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" reads from the
// start) without blocking. Entries without a record field are skipped.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read %s after %s: %w", stream, lastID, err)
	}

	var out []domain.StreamMessage
	for _, s := range res {
		for _, entry := range s.Messages {
			if v, ok := entry.Values[recordField].(string); ok {
				out = append(out, domain.StreamMessage{ID: entry.ID, Payload: []byte(v)})
			}
		}
	}
	return out, nil
}
