package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
	"github.com/ajitpratap0/ldes-replicator/pkg/metrics"
	"github.com/ajitpratap0/ldes-replicator/pkg/observability"
	"github.com/ajitpratap0/ldes-replicator/pkg/state"
)

// Status is the lifecycle state of one stream
type Status string

const (
	StatusUnprovisioned Status = "unprovisioned"
	StatusProvisioned   Status = "provisioned"
	StatusReading       Status = "reading"
	StatusEnded         Status = "ended"
	StatusErrored       Status = "errored"
)

type namedConnector struct {
	name string
	conn core.Connector
}

// stream is one replicated event stream with the resources it owns
type stream struct {
	o        *Orchestrator
	cfg      config.StreamConfig
	name     string
	identity string
	logger   *zap.Logger

	store      state.Store
	reader     ldes.Reader
	shape      ldes.Shape
	connectors []namedConnector

	mu     sync.Mutex
	status Status
	err    error
}

func newStream(o *Orchestrator, cfg config.StreamConfig) *stream {
	return &stream{
		o:        o,
		cfg:      cfg,
		name:     cfg.Name,
		identity: state.Identity(o.cfg.State.ID, cfg.URL),
		logger:   o.logger.With(zap.String("stream", cfg.Name)),
		status:   StatusUnprovisioned,
	}
}

func (s *stream) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// fail records err as the reason the stream errored and returns it
// annotated with the stream name
func (s *stream) fail(err error, msg string) error {
	wrapped := errors.Wrap(err, errorType(err), msg).
		WithDetail("stream", s.name).
		WithDetail("url", s.cfg.URL)

	s.mu.Lock()
	s.status = StatusErrored
	s.err = wrapped
	s.mu.Unlock()

	s.logger.Error(msg, zap.Error(err))
	return wrapped
}

func errorType(err error) errors.ErrorType {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Type
	}
	return errors.ErrorTypeInternal
}

func (s *stream) openStore(ctx context.Context) (state.Store, error) {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store != nil {
		return store, nil
	}

	store, err := s.o.stateFactory(s.o.cfg.State, s.identity, s.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Provision(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
	return store, nil
}

func (s *stream) provision(ctx context.Context) error {
	ctx = logger.WithStream(ctx, s.name)

	store, err := s.openStore(ctx)
	if err != nil {
		return s.fail(err, "failed to provision state store")
	}

	latest, err := store.LatestPage(ctx)
	if err != nil {
		return s.fail(err, "failed to read latest page")
	}
	processed, err := store.ProcessedPages(ctx)
	if err != nil {
		return s.fail(err, "failed to read processed pages")
	}
	start := latest
	if start == "" {
		start = s.cfg.URL
	}

	shape, err := s.o.shapes.FetchShape(ctx, s.cfg.URL)
	if err != nil {
		return s.fail(err, "failed to fetch stream shape")
	}
	s.shape = shape

	reader, err := s.o.readerFactory(ctx, ldes.ReaderOptions{
		URL:             s.cfg.URL,
		StartPage:       start,
		ExcludePages:    processed,
		PollingInterval: s.cfg.PollingInterval,
	})
	if err != nil {
		return s.fail(err, "failed to open stream reader")
	}
	s.reader = reader

	if err := s.provisionConnectors(ctx); err != nil {
		return s.fail(err, "failed to provision connectors")
	}

	s.setStatus(StatusProvisioned)
	s.logger.Info("stream provisioned",
		zap.String("start_page", start),
		zap.Int("processed_pages", len(processed)),
		zap.Int("connectors", len(s.connectors)))
	return nil
}

// provisionConnectors creates and provisions the stream's connectors in
// parallel. Every failure is reported, not just the first one.
func (s *stream) provisionConnectors(ctx context.Context) error {
	names := s.o.cfg.ConnectorsFor(s.cfg)
	connectors := make([]namedConnector, 0, len(names))
	for _, name := range names {
		conn, err := s.o.registry.Create(core.Params{
			Name:   name,
			Stream: s.name,
			Shape:  s.shape,
			Config: s.o.cfg.Connectors[name],
			Logger: s.o.rootLogger,
		})
		if err != nil {
			return err
		}
		connectors = append(connectors, namedConnector{name: name, conn: conn})
	}
	// kept before provisioning so Stop can release partially provisioned ones
	s.connectors = connectors

	errs := make([]error, len(connectors))
	var g errgroup.Group
	for i, c := range connectors {
		g.Go(func() error {
			if err := c.conn.Provision(logger.WithConnector(ctx, c.name)); err != nil {
				errs[i] = errors.Wrap(err, errorType(err), "connector "+c.name).WithDetail("connector", c.name)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *stream) run(ctx context.Context) error {
	ctx = logger.WithStream(ctx, s.name)
	s.setStatus(StatusReading)
	s.logger.Info("reading stream")

	es := s.reader.Stream(ctx)
	events, errs := es.Events, es.Errors
	for {
		select {
		case <-ctx.Done():
			s.setStatus(StatusEnded)
			s.logger.Info("stream reading cancelled")
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return s.fail(err, "stream reader failed")
			}

		case ev, ok := <-events:
			if !ok {
				// an error is sent before Events is closed
				select {
				case err := <-errs:
					if err != nil {
						return s.fail(err, "stream reader failed")
					}
				default:
				}
				s.setStatus(StatusEnded)
				s.logger.Info("stream ended")
				return nil
			}

			switch ev.Kind {
			case ldes.EventPage:
				if err := s.checkpoint(ctx, ev.Page); err != nil {
					return s.fail(err, "failed to checkpoint page")
				}
			case ldes.EventMember:
				s.dispatch(ctx, ev)
			}
		}
	}
}

func (s *stream) checkpoint(ctx context.Context, page string) error {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return errors.New(errors.ErrorTypeState, "state store is closed")
	}

	err := s.o.retry.ExecuteRetryable(ctx, func() error {
		return store.SetLatestPage(ctx, page)
	})
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusFailure
	}
	metrics.PagesProcessed.WithLabelValues(s.name, status).Inc()
	if err == nil {
		s.logger.Debug("page checkpointed", zap.String("page", page))
	}
	return err
}

// dispatch hands one member to every connector concurrently and waits for
// all of them. A failing connector is logged and does not affect the
// others or the stream.
func (s *stream) dispatch(ctx context.Context, ev ldes.Event) {
	timer := metrics.NewTimer()
	ctx, span := observability.StartSpan(ctx, "ldes.dispatch",
		observability.StreamKey.String(s.name),
		observability.PageKey.String(ev.Page))

	errs := make([]error, len(s.connectors))
	var wg sync.WaitGroup
	for i, c := range s.connectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.write(ctx, c, ev.Member.Clone())
		}()
	}
	wg.Wait()

	observability.EndSpan(span, errors.Join(errs...))
	metrics.MembersProcessed.WithLabelValues(s.name).Inc()
	timer.ObserveDuration(metrics.DispatchLatency.WithLabelValues(s.name))
}

func (s *stream) write(ctx context.Context, c namedConnector, member ldes.Member) (err error) {
	ctx, span := observability.StartSpan(logger.WithConnector(ctx, c.name), "ldes.write_version",
		observability.StreamKey.String(s.name),
		observability.ConnectorKey.String(c.name))
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrorTypeInternal, "connector panicked: %v", r)
		}
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusFailure
			s.logger.Warn("connector failed to write member",
				zap.String("connector", c.name),
				zap.Error(err))
		}
		metrics.ConnectorWrites.WithLabelValues(c.name, status).Inc()
		observability.EndSpan(span, err)
	}()

	return c.conn.WriteVersion(ctx, member)
}

func (s *stream) reset(ctx context.Context) error {
	store, err := s.openStore(ctx)
	if err != nil {
		return errors.Wrap(err, errorType(err), "failed to open state store").WithDetail("stream", s.name)
	}
	if err := store.Reset(ctx); err != nil {
		return errors.Wrap(err, errorType(err), "failed to reset state").WithDetail("stream", s.name)
	}
	s.logger.Info("stream state reset", zap.String("identity", s.identity))
	return nil
}

func (s *stream) stop(ctx context.Context) error {
	var errs []error
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	stopErrs := make([]error, len(s.connectors))
	var wg sync.WaitGroup
	for i, c := range s.connectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.conn.Stop(ctx); err != nil {
				stopErrs[i] = errors.Wrap(err, errorType(err), "connector "+c.name).WithDetail("connector", c.name)
			}
		}()
	}
	wg.Wait()
	errs = append(errs, stopErrs...)

	s.mu.Lock()
	store := s.store
	s.store = nil
	s.mu.Unlock()
	if store != nil {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return errors.Wrap(err, errorType(err), "failed to stop stream").WithDetail("stream", s.name)
	}
	return nil
}
