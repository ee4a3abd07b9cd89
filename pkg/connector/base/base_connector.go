// Package base provides the building blocks shared by the sink connectors.
//
// # Overview
//
// base provides:
//   - BaseConnector: identity, configuration, logger and timer bookkeeping
//   - RetryPolicy: bounded retry with exponential backoff and jitter
//   - WriteQueue: append and drain-and-clear queue of pending operations
//   - Flusher: periodic, serialized queue flushing with requeue on failure
//   - PeriodicTask: explicit timer object started in Provision, joined in Stop
//   - RetentionEnforcer: single-flight pruning of old entity versions
//
// # Usage
//
// Connectors embed BaseConnector and register their timers with it:
//
//	type MyConnector struct {
//	    *base.BaseConnector
//	    flusher *base.Flusher[string]
//	}
//
//	func (c *MyConnector) Provision(ctx context.Context) error {
//	    if err := c.RequireVersionFields(true); err != nil {
//	        return err
//	    }
//	    // connect ...
//	    c.StartTasks(ctx, c.flusher)
//	    return nil
//	}
//
// # Lifecycle
//
// 1. Create with NewBaseConnector from the factory's core.Params
// 2. Check structural preconditions before opening any connection
// 3. Start timers with StartTasks once the sink is reachable
// 4. StopTasks in Stop; it is a no-op for timers that never started
package base

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
)

// Task is a timer owned by a connector
type Task interface {
	Start(ctx context.Context)
}

// BaseConnector carries what every connector needs: its identity, the
// stream it serves, its configuration and the timers it owns.
type BaseConnector struct {
	name          string
	stream        string
	connectorType core.ConnectorType
	shape         ldes.Shape
	config        config.ConnectorConfig
	logger        *zap.Logger
	retryPolicy   *RetryPolicy

	mu      sync.Mutex
	started []Task
}

// NewBaseConnector creates the shared part of a connector
func NewBaseConnector(params core.Params, connectorType core.ConnectorType) *BaseConnector {
	cfg := params.Config
	cfg.ApplyDefaults()

	return &BaseConnector{
		name:          params.Name,
		stream:        params.Stream,
		connectorType: connectorType,
		shape:         params.Shape,
		config:        cfg,
		logger: logger.OrDefault(params.Logger).With(
			zap.String("connector", params.Name),
			zap.String("type", string(connectorType)),
			zap.String("stream", params.Stream)),
		retryPolicy: RetryPolicyFromConfig(cfg.Reliability),
	}
}

// Name returns the configured connector name
func (b *BaseConnector) Name() string { return b.name }

// Stream returns the name of the stream the connector serves
func (b *BaseConnector) Stream() string { return b.stream }

// Type returns the connector type tag
func (b *BaseConnector) Type() core.ConnectorType { return b.connectorType }

// Shape returns the stream's shape
func (b *BaseConnector) Shape() ldes.Shape { return b.shape }

// Config returns the connector configuration with defaults applied
func (b *BaseConnector) Config() *config.ConnectorConfig { return &b.config }

// Logger returns the connector's logger
func (b *BaseConnector) Logger() *zap.Logger { return b.logger }

// RetryPolicy returns the policy built from the reliability section
func (b *BaseConnector) RetryPolicy() *RetryPolicy { return b.retryPolicy }

// RequireVersionFields checks the versions section against the stream's
// shape. With identifierRequired the identifier must be configured; when a
// retention amount is set the sorter must be configured too. Every
// configured property must be declared by the shape.
func (b *BaseConnector) RequireVersionFields(identifierRequired bool) error {
	v := b.config.Versions
	if v == nil {
		if identifierRequired {
			return b.preconditionError("versions section is required")
		}
		return nil
	}

	if v.Identifier == "" && (identifierRequired || v.Amount > 0) {
		return b.preconditionError("versions.identifier is required")
	}
	if v.Amount > 0 && v.Sorter == "" {
		return b.preconditionError("versions.sorter is required when versions.amount is set")
	}
	if v.Identifier != "" && !b.shape.Has(v.Identifier) {
		return b.preconditionError("version identifier is not part of the stream shape").
			WithDetail("identifier", v.Identifier).
			WithDetail("shape", b.shape.Paths())
	}
	if v.Sorter != "" && !b.shape.Has(v.Sorter) {
		return b.preconditionError("version sorter is not part of the stream shape").
			WithDetail("sorter", v.Sorter).
			WithDetail("shape", b.shape.Paths())
	}
	return nil
}

func (b *BaseConnector) preconditionError(msg string) *errors.Error {
	return errors.New(errors.ErrorTypeConfig, msg).
		WithDetail("connector", b.name).
		WithDetail("stream", b.stream)
}

// StartTasks starts timers and remembers them for StopTasks
func (b *BaseConnector) StartTasks(ctx context.Context, tasks ...Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tasks {
		t.Start(ctx)
		b.started = append(b.started, t)
	}
}

// StopTasks stops every started timer, most recent first. Flushers flush
// what they still hold. It is safe to call more than once.
func (b *BaseConnector) StopTasks(ctx context.Context) error {
	b.mu.Lock()
	started := b.started
	b.started = nil
	b.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		switch t := started[i].(type) {
		case interface{ Stop(context.Context) error }:
			if err := t.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		case interface{ Stop() }:
			t.Stop()
		}
	}
	return errors.Join(errs...)
}
