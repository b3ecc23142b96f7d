package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memQuotes is an in-memory QuoteStore keyed by bookmaker for a single match.
type memQuotes struct {
	mu     sync.Mutex
	odds   map[string]domain.Odds
	getErr error
}

func newMemQuotes(odds map[string]domain.Odds) *memQuotes {
	if odds == nil {
		odds = map[string]domain.Odds{}
	}
	return &memQuotes{odds: odds}
}

func (m *memQuotes) Get(_ context.Context, match string) (domain.QuoteSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.Odds, len(m.odds))
	for k, v := range m.odds {
		out[k] = v
	}
	return domain.QuoteSnapshot{Match: match, Quotes: out}, nil
}

func (m *memQuotes) GetOne(_ context.Context, _, bookmaker string) (domain.Odds, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Odds{}, m.getErr
	}
	o, ok := m.odds[bookmaker]
	if !ok {
		return domain.Odds{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *memQuotes) Set(_ context.Context, q domain.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.odds[q.Bookmaker] = q.Odds
	return nil
}

func (m *memQuotes) Delete(_ context.Context, _, bookmaker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.odds, bookmaker)
	return nil
}

// memBus records publishes and serves a single subscription channel.
type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	sub       chan []byte
	pubErr    error
}

func newMemBus() *memBus {
	return &memBus{
		published: make(map[string][][]byte),
		sub:       make(chan []byte, 16),
	}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubErr != nil {
		return b.pubErr
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.sub, nil
}

func (b *memBus) StreamAppend(context.Context, string, []byte) error {
	return errors.New("not supported")
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, errors.New("not supported")
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

func (b *memBus) failPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubErr = err
}

func (b *memBus) records(channel string) []domain.ArbRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.ArbRecord, 0, len(b.published[channel]))
	for _, p := range b.published[channel] {
		rec, err := domain.DecodeArbRecord(p)
		if err == nil {
			out = append(out, rec)
		}
	}
	return out
}
