package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// TaskSet runs independent tasks concurrently and keeps track of them so a
// caller can wait for, or abandon, everything still in flight. A task that
// fails or panics is logged and reported by Wait; it does not affect its
// siblings.
type TaskSet struct {
	ctx     context.Context
	cancel  context.CancelFunc
	g       errgroup.Group
	running atomic.Int64
	logger  *slog.Logger
}

// NewTaskSet creates a TaskSet whose tasks run under a context derived from
// parent. Cancelling parent, or calling Abandon, cancels every task.
func NewTaskSet(parent context.Context, logger *slog.Logger) *TaskSet {
	ctx, cancel := context.WithCancel(parent)
	return &TaskSet{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Go starts fn in its own goroutine. name identifies the task in logs and
// errors.
func (t *TaskSet) Go(name string, fn func(ctx context.Context) error) {
	t.running.Add(1)
	InFlightReconciliations.Inc()
	t.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("executor: task %s panicked: %v", name, r)
				TaskFailuresTotal.WithLabelValues("panic").Inc()
				t.logger.Error("task panicked",
					slog.String("task", name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
			t.running.Add(-1)
			InFlightReconciliations.Dec()
		}()

		if err := fn(t.ctx); err != nil {
			if errors.Is(err, context.Canceled) && t.ctx.Err() != nil {
				t.logger.Debug("task abandoned", slog.String("task", name))
				return nil
			}
			TaskFailuresTotal.WithLabelValues("error").Inc()
			t.logger.Error("task failed",
				slog.String("task", name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("executor: task %s: %w", name, err)
		}
		return nil
	})
}

// Running returns the number of tasks that have not finished.
func (t *TaskSet) Running() int {
	return int(t.running.Load())
}

// Abandon cancels the context shared by all tasks. Tasks still waiting
// return promptly; Wait must still be called to collect them.
func (t *TaskSet) Abandon() {
	t.cancel()
}

// Wait blocks until every started task has returned and reports the first
// failure, if any.
func (t *TaskSet) Wait() error {
	return t.g.Wait()
}
