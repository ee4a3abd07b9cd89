package graphdb

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/connector/base"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/rdf"
)

// sink is the part shared by the graphdb connectors
type sink struct {
	*base.BaseConnector
	settings Settings
	graph    string
	client   sparqlClient
}

func newSink(params core.Params, connectorType core.ConnectorType) *sink {
	b := base.NewBaseConnector(params, connectorType)
	settings := ParseSettings(b.Config())
	return &sink{
		BaseConnector: b,
		settings:      settings,
		graph:         settings.Graph(params.Stream),
	}
}

// Graph returns the named graph the connector writes to
func (s *sink) Graph() string {
	return s.graph
}

// connect creates the SPARQL client and checks that the repository answers
func (s *sink) connect(ctx context.Context) error {
	client, err := newSPARQLClient(s.settings, s.Config(), s.Logger())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid graphdb settings").WithDetail("connector", s.Name())
	}
	s.client = client

	err = s.RetryPolicy().ExecuteRetryable(ctx, func() error {
		_, err := client.Ask(ctx, "ASK {}")
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "graphdb repository unreachable").
			WithDetail("connector", s.Name()).
			WithDetail("endpoint", s.settings.QueryEndpoint)
	}

	s.Logger().Info("connected to graphdb",
		zap.String("endpoint", s.settings.UpdateEndpoint),
		zap.String("graph", s.graph))
	return nil
}

func (s *sink) close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *sink) parse(member ldes.Member) (*rdf.Document, error) {
	doc, err := rdf.Parse(member)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse member").WithDetail("connector", s.Name())
	}
	return doc, nil
}

func (s *sink) notProvisioned() error {
	return errors.New(errors.ErrorTypeInternal, "connector is not provisioned").WithDetail("connector", s.Name())
}

// retentionFor builds the retention enforcer of a versions graph, nil when
// retention is disabled
func (s *sink) retentionFor(graph string) *base.RetentionEnforcer {
	cfg := s.Config()
	limit := cfg.RetentionLimit()
	if limit <= 0 {
		return nil
	}
	store := &versionStore{
		client:     s.client,
		graph:      graph,
		identifier: cfg.Versions.Identifier,
		sorter:     cfg.Versions.Sorter,
	}
	return base.NewRetentionEnforcer(s.Name(), store, limit, s.RetryPolicy(), s.Logger())
}

func (s *sink) newFlusher() *base.Flusher[string] {
	cfg := s.Config()
	return base.NewFlusher(base.FlusherConfig{
		Name:         s.Name(),
		Interval:     cfg.Performance.FlushInterval,
		MaxBatchSize: cfg.Performance.MaxBatchSize,
		Retry:        s.RetryPolicy(),
	}, func(ctx context.Context, ops []string) error {
		if s.client == nil {
			return s.notProvisioned()
		}
		return s.client.Update(ctx, joinOperations(ops))
	}, s.Logger())
}
