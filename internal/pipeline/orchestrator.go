// Package pipeline runs the replication of event streams into sink
// connectors.
//
// # Overview
//
// An Orchestrator owns one replication stream per configured event stream.
// Each stream has its own checkpoint store, reader and connectors, and
// moves through the states
//
//	Unprovisioned -> Provisioned -> Reading -> Ended | Errored
//
// # Basic Usage
//
//	orch, err := pipeline.New(cfg, pipeline.WithLogger(log))
//	if err != nil {
//	    return err // unknown connector type or invalid configuration
//	}
//	if err := orch.Provision(ctx); err != nil {
//	    log.Warn("some streams failed to provision", zap.Error(err))
//	}
//	err = orch.Run(ctx)
//	_ = orch.Stop(context.Background())
//
// # Delivery
//
// Members of one stream are dispatched in source order. A member is handed
// to every connector of its stream concurrently, and the next member is
// only read once all connectors returned. Pages are checkpointed when the
// reader announces them, so after a restart the last page is read again
// and connectors see its members at least once.
package pipeline

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/base"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/registry"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes/snapshot"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
	"github.com/ajitpratap0/ldes-replicator/pkg/state"
)

// Orchestrator replicates every configured stream into its connectors
type Orchestrator struct {
	cfg           *config.ReplicatorConfig
	registry      *registry.Registry
	readerFactory ldes.ReaderFactory
	shapes        ldes.ShapeFetcher
	stateFactory  state.Factory
	retry         *base.RetryPolicy
	rootLogger    *zap.Logger
	logger        *zap.Logger

	streams []*stream

	mu      sync.Mutex
	stopped bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRegistry resolves connector types from r instead of the global
// registry
func WithRegistry(r *registry.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithReaderFactory sets how stream readers are opened. The default reads
// snapshot files.
func WithReaderFactory(f ldes.ReaderFactory) Option {
	return func(o *Orchestrator) { o.readerFactory = f }
}

// WithShapeFetcher sets how stream shapes are resolved. The default serves
// the shapes declared in the configuration.
func WithShapeFetcher(f ldes.ShapeFetcher) Option {
	return func(o *Orchestrator) { o.shapes = f }
}

// WithStateFactory sets how checkpoint stores are created. The default
// uses the store type named in the configuration.
func WithStateFactory(f state.Factory) Option {
	return func(o *Orchestrator) { o.stateFactory = f }
}

// WithRetryPolicy sets the retry applied to checkpoint writes
func WithRetryPolicy(p *base.RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New builds an orchestrator for cfg. The configuration is validated and
// every connector type is resolved, so an unknown type fails here before
// anything is provisioned.
func New(cfg *config.ReplicatorConfig, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:          cfg,
		registry:     registry.GetRegistry(),
		stateFactory: state.New,
		retry:        base.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.rootLogger = logger.OrDefault(o.logger)
	o.logger = o.rootLogger.With(zap.String("component", "orchestrator"))
	if o.readerFactory == nil {
		o.readerFactory = snapshot.NewReaderFactory(o.logger)
	}
	if o.shapes == nil {
		shapes := make(ldes.StaticShapes, len(cfg.Streams))
		for _, s := range cfg.Streams {
			shapes[s.URL] = s.Shape
		}
		o.shapes = shapes
	}

	names := make([]string, 0, len(cfg.Connectors))
	for name := range cfg.Connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		connType := cfg.Connectors[name].Type
		if _, err := o.registry.Resolve(core.ConnectorType(connType)); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to resolve connector").
				WithDetail("connector", name).
				WithDetail("type", connType)
		}
	}

	for _, sc := range cfg.Streams {
		o.streams = append(o.streams, newStream(o, sc))
	}
	return o, nil
}

// Provision prepares every stream concurrently: checkpoint store, resume
// position, reader and connectors. A stream that fails is marked Errored
// and does not prevent its siblings from being provisioned; the failures
// are returned joined.
func (o *Orchestrator) Provision(ctx context.Context) error {
	errs := make([]error, len(o.streams))
	var g errgroup.Group
	for i, s := range o.streams {
		g.Go(func() error {
			errs[i] = s.provision(ctx)
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		o.logger.Warn("provisioning finished with errors", zap.Error(err))
	}
	return err
}

// Run reads all provisioned streams concurrently until each of them ends,
// fails or ctx is cancelled. Reader failures only end their own stream and
// are returned joined once every stream has finished.
func (o *Orchestrator) Run(ctx context.Context) error {
	var running []*stream
	for _, s := range o.streams {
		if s.Status() == StatusProvisioned {
			running = append(running, s)
		}
	}
	if len(running) == 0 {
		return errors.New(errors.ErrorTypeInternal, "no provisioned streams to run")
	}

	errs := make([]error, len(running))
	var g errgroup.Group
	for i, s := range running {
		g.Go(func() error {
			errs[i] = s.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Reset clears the checkpoint of every stream. Streams that were not
// provisioned get a store just for the reset.
func (o *Orchestrator) Reset(ctx context.Context) error {
	var errs []error
	for _, s := range o.streams {
		if err := s.reset(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop closes the readers, stops every connector, which flushes queued
// writes, and closes the checkpoint stores. It is safe to call after a
// partial provisioning and more than once.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	o.mu.Unlock()

	errs := make([]error, len(o.streams))
	var g errgroup.Group
	for i, s := range o.streams {
		g.Go(func() error {
			errs[i] = s.stop(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Status returns the state of every stream by name
func (o *Orchestrator) Status() map[string]Status {
	out := make(map[string]Status, len(o.streams))
	for _, s := range o.streams {
		out[s.name] = s.Status()
	}
	return out
}

// Err returns the error that moved a stream to Errored, if any
func (o *Orchestrator) Err(streamName string) error {
	for _, s := range o.streams {
		if s.name == streamName {
			return s.Err()
		}
	}
	return nil
}
