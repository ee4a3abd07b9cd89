package graphdb

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/connector/base"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
)

// BatchConnector queues one INSERT DATA operation per member and sends the
// queue as a single update request on every flush. With a retention amount
// configured it also keeps the number of versions per entity bounded.
type BatchConnector struct {
	*sink
	flusher   *base.Flusher[string]
	retention *base.RetentionEnforcer
}

// NewBatchConnector creates a graphdb-batch connector
func NewBatchConnector(params core.Params) (core.Connector, error) {
	c := &BatchConnector{sink: newSink(params, core.TypeGraphDBBatch)}
	c.flusher = c.newFlusher()
	return c, nil
}

// Provision implements core.Connector
func (c *BatchConnector) Provision(ctx context.Context) error {
	if err := c.RequireVersionFields(false); err != nil {
		return err
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	c.StartTasks(ctx, c.flusher)
	if c.retention = c.retentionFor(c.graph); c.retention != nil {
		c.StartTasks(ctx, c.retention.Task(c.Config().Performance.RetentionInterval))
	}

	c.Logger().Info("graphdb batch connector provisioned",
		zap.Duration("flush_interval", c.Config().Performance.FlushInterval),
		zap.Int("retention", c.Config().RetentionLimit()))
	return nil
}

// WriteVersion implements core.Connector. It returns once the operation is
// queued.
func (c *BatchConnector) WriteVersion(_ context.Context, member ldes.Member) error {
	doc, err := c.parse(member)
	if err != nil {
		return err
	}
	if len(doc.Triples) == 0 {
		return nil
	}
	c.flusher.Enqueue(insertData(c.graph, doc.Triples))
	return nil
}

// Flush sends the queued operations now
func (c *BatchConnector) Flush(ctx context.Context) error {
	return c.flusher.Flush(ctx)
}

// EnforceRetention runs one retention pass now
func (c *BatchConnector) EnforceRetention(ctx context.Context) (base.RetentionResult, error) {
	if c.retention == nil {
		return base.RetentionResult{}, nil
	}
	return c.retention.Enforce(ctx)
}

// Stop implements core.Connector. Queued operations are flushed first.
func (c *BatchConnector) Stop(ctx context.Context) error {
	return errors.Join(c.StopTasks(ctx), c.close())
}
