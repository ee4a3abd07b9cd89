package base

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
)

// PeriodicTask runs a function on a fixed interval until stopped. Runs never
// overlap: a tick that fires while the previous run is still busy is dropped
// by the ticker.
type PeriodicTask struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPeriodicTask creates a stopped task
func NewPeriodicTask(name string, interval time.Duration, fn func(ctx context.Context), l *zap.Logger) *PeriodicTask {
	return &PeriodicTask{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.OrDefault(l).With(zap.String("task", name)),
	}
}

// Start launches the task. The task outlives ctx's cancellation and runs
// until Stop; only ctx's values are kept. Starting a running task is a no-op.
func (t *PeriodicTask) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil || t.interval <= 0 {
		return
	}

	ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)

	t.logger.Debug("periodic task started", zap.Duration("interval", t.interval))
}

func (t *PeriodicTask) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fn(ctx)
		}
	}
}

// Stop cancels the task and waits for a running invocation to return. It is
// safe to call on a task that was never started.
func (t *PeriodicTask) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.logger.Debug("periodic task stopped")
}

// Running reports whether the task has been started and not stopped
func (t *PeriodicTask) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
