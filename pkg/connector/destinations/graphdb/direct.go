package graphdb

import (
	"context"

	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
)

// DirectConnector sends one INSERT DATA request per member
type DirectConnector struct {
	*sink
}

// NewDirectConnector creates a graphdb connector
func NewDirectConnector(params core.Params) (core.Connector, error) {
	return &DirectConnector{sink: newSink(params, core.TypeGraphDB)}, nil
}

// Provision implements core.Connector
func (c *DirectConnector) Provision(ctx context.Context) error {
	return c.connect(ctx)
}

// WriteVersion implements core.Connector
func (c *DirectConnector) WriteVersion(ctx context.Context, member ldes.Member) error {
	if c.client == nil {
		return c.notProvisioned()
	}
	doc, err := c.parse(member)
	if err != nil {
		return err
	}
	if len(doc.Triples) == 0 {
		return nil
	}

	update := insertData(c.graph, doc.Triples)
	return c.RetryPolicy().ExecuteRetryable(ctx, func() error {
		return c.client.Update(ctx, update)
	})
}

// Stop implements core.Connector
func (c *DirectConnector) Stop(context.Context) error {
	return c.close()
}
