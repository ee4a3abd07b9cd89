package base

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
	"github.com/ajitpratap0/ldes-replicator/pkg/metrics"
)

// FlushFunc hands a batch of queued operations to the sink
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// Flusher owns a WriteQueue and moves its content to the sink, either on a
// timer or when asked to.
//
// Flushes are serialized. A batch whose write keeps failing with a
// retryable error is put back at the head of the queue so the next flush
// retries it in order; a batch rejected with a non-retryable error is
// dropped and logged.
type Flusher[T any] struct {
	name     string
	queue    *WriteQueue[T]
	flush    FlushFunc[T]
	retry    *RetryPolicy
	maxBatch int
	task     *PeriodicTask
	logger   *zap.Logger

	flushMu sync.Mutex
}

// FlusherConfig configures a Flusher
type FlusherConfig struct {
	// Name labels logs and metrics, usually the connector name
	Name string
	// Interval of the periodic flush, zero disables the timer
	Interval time.Duration
	// MaxBatchSize splits large flushes into several writes (0 = unlimited)
	MaxBatchSize int
	// Retry is applied to every write; nil means no retry
	Retry *RetryPolicy
}

// NewFlusher creates a flusher. Call Start to enable the periodic flush.
func NewFlusher[T any](cfg FlusherConfig, fn FlushFunc[T], l *zap.Logger) *Flusher[T] {
	retry := cfg.Retry
	if retry == nil {
		retry = NoRetryPolicy()
	}
	f := &Flusher[T]{
		name:     cfg.Name,
		queue:    NewWriteQueue[T](),
		flush:    fn,
		retry:    retry,
		maxBatch: cfg.MaxBatchSize,
		logger:   logger.OrDefault(l).With(zap.String("component", "flusher")),
	}
	f.task = NewPeriodicTask(cfg.Name+"_flush", cfg.Interval, f.tick, f.logger)
	return f
}

// Enqueue appends operations to the queue
func (f *Flusher[T]) Enqueue(items ...T) {
	n := f.queue.Append(items...)
	metrics.QueueDepth.WithLabelValues(f.name).Set(float64(n))
}

// Pending returns the number of queued operations
func (f *Flusher[T]) Pending() int {
	return f.queue.Len()
}

// Start enables the periodic flush
func (f *Flusher[T]) Start(ctx context.Context) {
	f.task.Start(ctx)
}

// Stop disables the periodic flush and flushes whatever is still queued
func (f *Flusher[T]) Stop(ctx context.Context) error {
	f.task.Stop()
	return f.Flush(ctx)
}

func (f *Flusher[T]) tick(ctx context.Context) {
	if err := f.Flush(ctx); err != nil {
		f.logger.Warn("periodic flush failed", zap.Error(err), zap.Int("pending", f.Pending()))
	}
}

// Flush drains the queue and writes its content. Operations enqueued while
// a flush is running are picked up by the next one.
func (f *Flusher[T]) Flush(ctx context.Context) error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	batch := f.queue.Drain()
	if len(batch) == 0 {
		return nil
	}
	defer func() {
		metrics.QueueDepth.WithLabelValues(f.name).Set(float64(f.queue.Len()))
	}()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FlushDuration.WithLabelValues(f.name))

	var errs []error
	for start := 0; start < len(batch); {
		end := len(batch)
		if f.maxBatch > 0 && start+f.maxBatch < end {
			end = start + f.maxBatch
		}
		chunk := batch[start:end]

		err := f.retry.ExecuteRetryable(ctx, func() error {
			return f.flush(ctx, chunk)
		})
		if err == nil {
			metrics.FlushedOperations.WithLabelValues(f.name, metrics.StatusSuccess).Add(float64(len(chunk)))
			start = end
			continue
		}

		metrics.FlushedOperations.WithLabelValues(f.name, metrics.StatusFailure).Add(float64(len(chunk)))
		if errors.IsRetryable(err) {
			n := f.queue.Requeue(batch[start:])
			f.logger.Warn("flush failed, operations requeued",
				zap.Error(err),
				zap.Int("requeued", len(batch)-start),
				zap.Int("pending", n))
			return errors.Join(append(errs, err)...)
		}

		f.logger.Error("flush rejected, operations dropped",
			zap.Error(err),
			zap.Int("dropped", len(chunk)))
		errs = append(errs, err)
		start = end
	}

	f.logger.Debug("queue flushed", zap.Int("operations", len(batch)), zap.Duration("duration", timer.Stop()))
	return errors.Join(errs...)
}
