package graphdb

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/connector/base"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/rdf"
)

// MaterializedConnector keeps the latest version of every entity in the
// stream graph. Each member replaces everything known about its entity
// with the member's statements rewritten onto the entity, plus a
// dcterms:hasVersion link to the version node.
//
// With a retention amount configured the raw versions are also kept in the
// "<graph>/versions" history graph, bounded per entity.
type MaterializedConnector struct {
	*sink
	identifier string
	history    string
	flusher    *base.Flusher[string]
	retention  *base.RetentionEnforcer

	lucene     *luceneIndex
	indexReady atomic.Bool
	indexWG    sync.WaitGroup
}

// NewMaterializedConnector creates a graphdb-materialized connector
func NewMaterializedConnector(params core.Params) (core.Connector, error) {
	c := &MaterializedConnector{sink: newSink(params, core.TypeGraphDBMaterialized)}
	c.history = c.graph + versionsGraphSuffix
	if v := c.Config().Versions; v != nil {
		c.identifier = v.Identifier
	}
	if chain := c.settings.LucenePropertyChain(); len(chain) > 0 {
		c.lucene = newLuceneIndex(params.Stream, chain)
	} else {
		c.indexReady.Store(true)
	}
	c.flusher = c.newFlusher()
	return c, nil
}

// HistoryGraph returns the graph holding the raw versions
func (c *MaterializedConnector) HistoryGraph() string {
	return c.history
}

// Provision implements core.Connector. The version identifier must be part
// of the stream shape; this is checked before connecting.
func (c *MaterializedConnector) Provision(ctx context.Context) error {
	if err := c.RequireVersionFields(true); err != nil {
		return err
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	if c.lucene != nil {
		exists, err := c.lucene.exists(ctx, c.client)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to look up lucene index").
				WithDetail("connector", c.Name())
		}
		c.indexReady.Store(exists)
	}

	c.StartTasks(ctx, c.flusher)
	if c.retention = c.retentionFor(c.history); c.retention != nil {
		c.StartTasks(ctx, c.retention.Task(c.Config().Performance.RetentionInterval))
	}

	c.Logger().Info("graphdb materializing connector provisioned",
		zap.String("identifier", c.identifier),
		zap.Bool("history", c.retention != nil),
		zap.Bool("lucene_index", c.lucene != nil))
	return nil
}

// WriteVersion implements core.Connector. It returns once the operations
// are queued.
func (c *MaterializedConnector) WriteVersion(ctx context.Context, member ldes.Member) error {
	doc, err := c.parse(member)
	if err != nil {
		return err
	}

	entity, ok := doc.Object(c.identifier)
	if !ok || entity.Kind == rdf.KindLiteral {
		return errors.New(errors.ErrorTypeData, "member has no version identifier").
			WithDetail("connector", c.Name()).
			WithDetail("identifier", c.identifier).
			WithDetail("version", doc.Root.Value)
	}

	ops := []string{
		deleteAbout(c.graph, entity),
		insertData(c.graph, materialize(doc, entity, c.identifier)),
	}
	if c.Config().RetentionLimit() > 0 {
		ops = append(ops, insertData(c.history, doc.Triples))
	}
	// one queue item per member so a batch never splits the replacement
	c.flusher.Enqueue(joinOperations(ops))

	c.ensureIndex(ctx, doc)
	return nil
}

// ensureIndex creates the lucene index in the background on the first
// member that carries a type
func (c *MaterializedConnector) ensureIndex(ctx context.Context, doc *rdf.Document) {
	if c.indexReady.Load() || c.client == nil {
		return
	}
	typ, ok := doc.Object(rdf.RDFType)
	if !ok || typ.Kind != rdf.KindIRI {
		return
	}
	if !c.indexReady.CompareAndSwap(false, true) {
		return
	}

	ctx = context.WithoutCancel(ctx)
	c.indexWG.Add(1)
	go func() {
		defer c.indexWG.Done()
		if err := c.lucene.create(ctx, c.client, typ.Value); err != nil {
			c.Logger().Error("failed to create lucene index", zap.String("index", c.lucene.name), zap.Error(err))
			return
		}
		c.Logger().Info("lucene index created", zap.String("index", c.lucene.name), zap.String("type", typ.Value))
	}()
}

// Flush sends the queued operations now
func (c *MaterializedConnector) Flush(ctx context.Context) error {
	return c.flusher.Flush(ctx)
}

// EnforceRetention runs one retention pass on the history graph now
func (c *MaterializedConnector) EnforceRetention(ctx context.Context) (base.RetentionResult, error) {
	if c.retention == nil {
		return base.RetentionResult{}, nil
	}
	return c.retention.Enforce(ctx)
}

// Stop implements core.Connector. Queued operations are flushed and a
// pending index creation is awaited before the client is released.
func (c *MaterializedConnector) Stop(ctx context.Context) error {
	err := c.StopTasks(ctx)
	c.indexWG.Wait()
	return errors.Join(err, c.close())
}
