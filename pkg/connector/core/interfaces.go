// Package core defines the contract between the orchestrator and the sink
// connectors.
package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
)

// ConnectorType is the tag a connector implementation is registered under
type ConnectorType string

// Built-in connector types
const (
	// TypeGraphDB writes every member with one INSERT DATA request
	TypeGraphDB ConnectorType = "graphdb"
	// TypeGraphDBBatch queues INSERT DATA operations and flushes them periodically
	TypeGraphDBBatch ConnectorType = "graphdb-batch"
	// TypeGraphDBMaterialized keeps only the latest version of every entity
	TypeGraphDBMaterialized ConnectorType = "graphdb-materialized"
	// TypeMongoDB stores members as documents
	TypeMongoDB ConnectorType = "mongodb"
	// TypeKafka publishes members to a topic
	TypeKafka ConnectorType = "kafka"
	// TypeJSONL appends members to a line-delimited JSON file
	TypeJSONL ConnectorType = "jsonl"
)

// Connector is a sink adapter fed by the orchestrator.
//
// Provision validates structural preconditions before it opens any
// connection and then prepares the sink. WriteVersion accepts one member;
// queued connectors return before the remote write happens. A failing
// WriteVersion affects only that member. Stop releases timers and
// connections and is safe to call after a partial or failed Provision.
type Connector interface {
	Provision(ctx context.Context) error
	WriteVersion(ctx context.Context, member ldes.Member) error
	Stop(ctx context.Context) error
}

// Params carries everything a connector factory needs
type Params struct {
	// Name is the connector's configured name
	Name string
	// Stream is the name of the stream the connector is attached to
	Stream string
	// Shape is the stream's shape
	Shape ldes.Shape
	// Config is the connector's configuration section
	Config config.ConnectorConfig
	Logger *zap.Logger
}

// Factory creates a connector. Factories must not perform I/O.
type Factory func(params Params) (Connector, error)
