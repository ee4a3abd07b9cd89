package base

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
	"github.com/ajitpratap0/ldes-replicator/pkg/metrics"
)

// VersionStore is the sink side of a retention pass
type VersionStore interface {
	// OverLimit lists the entities holding more than limit versions
	OverLimit(ctx context.Context, limit int) ([]string, error)
	// Versions lists the versions of an entity, oldest first
	Versions(ctx context.Context, entity string) ([]string, error)
	// DeleteVersions removes the given versions of an entity
	DeleteVersions(ctx context.Context, entity string, versions []string) error
}

// RetentionResult summarizes one retention pass
type RetentionResult struct {
	// Skipped is set when another pass was still running
	Skipped  bool
	Entities int
	Deleted  int
}

// RetentionEnforcer trims every entity down to its newest limit versions.
// At most one pass runs at a time; a pass requested while another one is
// in progress returns immediately with Skipped set.
type RetentionEnforcer struct {
	name    string
	store   VersionStore
	limit   int
	retry   *RetryPolicy
	running atomic.Bool
	logger  *zap.Logger
}

// NewRetentionEnforcer creates an enforcer keeping limit versions per entity
func NewRetentionEnforcer(name string, store VersionStore, limit int, retry *RetryPolicy, l *zap.Logger) *RetentionEnforcer {
	if retry == nil {
		retry = NoRetryPolicy()
	}
	return &RetentionEnforcer{
		name:   name,
		store:  store,
		limit:  limit,
		retry:  retry,
		logger: logger.OrDefault(l).With(zap.String("component", "retention"), zap.Int("limit", limit)),
	}
}

// Limit returns the number of versions kept per entity
func (r *RetentionEnforcer) Limit() int {
	return r.limit
}

// Enforce runs one retention pass. A failure on one entity does not stop
// the pass; all failures are returned joined.
func (r *RetentionEnforcer) Enforce(ctx context.Context) (RetentionResult, error) {
	if r.limit <= 0 {
		return RetentionResult{}, nil
	}
	if !r.running.CompareAndSwap(false, true) {
		metrics.RetentionSkipped.WithLabelValues(r.name).Inc()
		r.logger.Debug("retention pass already running, skipping")
		return RetentionResult{Skipped: true}, nil
	}
	defer r.running.Store(false)

	var entities []string
	err := r.retry.ExecuteRetryable(ctx, func() error {
		var err error
		entities, err = r.store.OverLimit(ctx, r.limit)
		return err
	})
	if err != nil {
		return RetentionResult{}, errors.Wrap(err, errors.ErrorTypeQuery, "failed to list entities over the retention limit")
	}

	result := RetentionResult{Entities: len(entities)}
	var errs []error
	for _, entity := range entities {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		deleted, err := r.trim(ctx, entity)
		result.Deleted += deleted
		if err != nil {
			r.logger.Warn("retention failed for entity", zap.String("entity", entity), zap.Error(err))
			errs = append(errs, err)
		}
	}

	metrics.RetentionDeleted.WithLabelValues(r.name).Add(float64(result.Deleted))
	if result.Deleted > 0 {
		r.logger.Info("retention pass completed",
			zap.Int("entities", result.Entities),
			zap.Int("deleted", result.Deleted))
	}
	return result, errors.Join(errs...)
}

func (r *RetentionEnforcer) trim(ctx context.Context, entity string) (int, error) {
	var versions []string
	err := r.retry.ExecuteRetryable(ctx, func() error {
		var err error
		versions, err = r.store.Versions(ctx, entity)
		return err
	})
	if err != nil {
		return 0, err
	}

	excess := len(versions) - r.limit
	if excess <= 0 {
		return 0, nil
	}
	stale := versions[:excess]

	err = r.retry.ExecuteRetryable(ctx, func() error {
		return r.store.DeleteVersions(ctx, entity, stale)
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Task wraps the enforcer in a PeriodicTask firing every interval
func (r *RetentionEnforcer) Task(interval time.Duration) *PeriodicTask {
	return NewPeriodicTask(r.name+"_retention", interval, func(ctx context.Context) {
		if _, err := r.Enforce(ctx); err != nil {
			r.logger.Warn("retention pass failed", zap.Error(err))
		}
	}, r.logger)
}
