package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// DefaultReceiveTimeout bounds each blocking read on a subscription.
const DefaultReceiveTimeout = time.Second

const subscriptionBuffer = 128

// SignalBus carries odds, detection and execution events over Redis Pub/Sub
// and keeps the audit trail in a Redis stream (see audit_stream.go).
type SignalBus struct {
	rdb            *redis.Client
	receiveTimeout time.Duration
}

// NewSignalBus creates a SignalBus. Each subscription read blocks for at
// most receiveTimeout before the subscriber re-checks its context.
func NewSignalBus(c *Client, receiveTimeout time.Duration) *SignalBus {
	if receiveTimeout <= 0 {
		receiveTimeout = DefaultReceiveTimeout
	}
	return &SignalBus{rdb: c.Underlying(), receiveTimeout: receiveTimeout}
}

// Publish sends payload to every current subscriber of channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription. The returned
// channel is closed when ctx ends or the connection fails; callers treat a
// closed channel as a transport failure and subscribe again. Channel names
// containing glob characters are pattern subscriptions.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	subscribe := sb.rdb.Subscribe
	if hasPattern(channel) {
		subscribe = sb.rdb.PSubscribe
	}
	ps := subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriptionBuffer)
	go sb.pump(ctx, ps, out)
	return out, nil
}

func (sb *SignalBus) pump(ctx context.Context, ps *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer ps.Close()

	for ctx.Err() == nil {
		msg, err := ps.ReceiveTimeout(ctx, sb.receiveTimeout)
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			continue
		case err != nil:
			return
		}
		m, ok := msg.(*redis.Message)
		if !ok {
			continue // subscription confirmation or pong
		}
		select {
		case out <- []byte(m.Payload):
		case <-ctx.Done():
			return
		}
	}
}

func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

var _ domain.SignalBus = (*SignalBus)(nil)
