package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// scriptedBus hands out the subscriptions in subs one per Subscribe call and
// fails a call whenever the matching errs entry is set.
type scriptedBus struct {
	mu    sync.Mutex
	subs  []chan []byte
	errs  []error
	calls int
}

func (b *scriptedBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.calls
	b.calls++
	if i < len(b.errs) && b.errs[i] != nil {
		return nil, b.errs[i]
	}
	if i < len(b.subs) {
		return b.subs[i], nil
	}
	return make(chan []byte), nil
}

func (b *scriptedBus) subscribeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *scriptedBus) Publish(context.Context, string, []byte) error { return nil }

func (b *scriptedBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *scriptedBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type collector struct {
	mu   sync.Mutex
	seen []string
}

func (c *collector) handle(_ context.Context, payload []byte) error {
	if string(payload) == "bad" {
		return errors.New("malformed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, string(payload))
	return nil
}

func (c *collector) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListener_Run_RetriesFailedSubscribe(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte("hello")
	b := &scriptedBus{
		errs: []error{errors.New("connection refused"), nil},
		subs: []chan []byte{nil, ch},
	}
	c := &collector{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewListener(b, "odds", time.Millisecond, testLogger()).Run(ctx, c.handle) }()

	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.GreaterOrEqual(t, b.subscribeCalls(), 2)
}

func TestListener_Run_DropsFailedMessages(t *testing.T) {
	ch := make(chan []byte, 3)
	ch <- []byte("one")
	ch <- []byte("bad")
	ch <- []byte("two")
	b := &scriptedBus{subs: []chan []byte{ch}}
	c := &collector{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewListener(b, "odds", time.Millisecond, testLogger()).Run(ctx, c.handle) }()

	require.Eventually(t, func() bool { return len(c.messages()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []string{"one", "two"}, c.messages())
}

func TestListener_Run_ResubscribesWhenClosed(t *testing.T) {
	first := make(chan []byte, 1)
	first <- []byte("one")
	close(first)
	second := make(chan []byte, 1)
	second <- []byte("two")
	b := &scriptedBus{subs: []chan []byte{first, second}}
	c := &collector{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewListener(b, "odds", time.Millisecond, testLogger()).Run(ctx, c.handle) }()

	require.Eventually(t, func() bool { return len(c.messages()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []string{"one", "two"}, c.messages())
}

func TestListener_Run_StopsDuringBackoff(t *testing.T) {
	b := &scriptedBus{errs: []error{errors.New("down")}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewListener(b, "odds", time.Hour, testLogger()).Run(ctx, (&collector{}).handle) }()

	require.Eventually(t, func() bool { return b.subscribeCalls() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestNewListener_DefaultBackoff(t *testing.T) {
	l := NewListener(&scriptedBus{}, "odds", 0, testLogger())
	assert.Equal(t, DefaultRetryBackoff, l.backoff)
}
