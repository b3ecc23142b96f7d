// Package bus runs long-lived subscriptions on a domain.SignalBus and feeds
// each payload to a handler.
package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// DefaultRetryBackoff is used when a Listener is built with a zero backoff.
const DefaultRetryBackoff = 5 * time.Second

// Handler processes one payload. A returned error is logged and the message
// is dropped; it never stops the listener.
type Handler func(ctx context.Context, payload []byte) error

// Listener keeps a subscription to one channel alive until its context ends.
type Listener struct {
	bus     domain.SignalBus
	channel string
	backoff time.Duration
	logger  *slog.Logger
}

// NewListener creates a Listener for channel.
func NewListener(bus domain.SignalBus, channel string, backoff time.Duration, logger *slog.Logger) *Listener {
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Listener{
		bus:     bus,
		channel: channel,
		backoff: backoff,
		logger:  logger.With(slog.String("channel", channel)),
	}
}

// Run subscribes and dispatches payloads to handle one at a time. If the
// subscription cannot be established, or is closed by the bus, it waits the
// configured backoff and subscribes again. Run returns ctx.Err() once ctx is
// cancelled; a message already handed to handle is processed to completion
// first.
func (l *Listener) Run(ctx context.Context, handle Handler) error {
	for {
		ch, err := l.bus.Subscribe(ctx, l.channel)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("subscribe failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("backoff", l.backoff),
			)
			if !sleep(ctx, l.backoff) {
				return ctx.Err()
			}
			continue
		}

		l.logger.Debug("subscribed")
		l.consume(ctx, ch, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.logger.Warn("subscription closed, resubscribing", slog.Duration("backoff", l.backoff))
		if !sleep(ctx, l.backoff) {
			return ctx.Err()
		}
	}
}

func (l *Listener) consume(ctx context.Context, ch <-chan []byte, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if err := handle(ctx, data); err != nil {
				l.logger.Warn("dropping message",
					slog.String("error", err.Error()),
					slog.String("payload", string(data)),
				)
			}
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
