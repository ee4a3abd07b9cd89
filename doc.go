// Package replicator replicates Linked Data Event Streams (LDES) into sink
// systems: RDF graph stores, document stores, message brokers and files.
//
// An event stream publishes immutable versions of entities, grouped in pages.
// The replicator reads every configured stream in page order, hands each
// version to the stream's connectors and checkpoints the pages it has seen,
// so a restarted replicator resumes where it stopped.
//
// # Architecture
//
// 1. Streams: each configured stream has its own reader, checkpoint store and
// connector set. A failing stream never stops its siblings.
//
// 2. Connectors: sinks are registered by type tag. Direct connectors write
// every member immediately; queued connectors batch writes and flush them
// periodically; materializing connectors keep only the newest version of
// each entity and can enforce a version retention limit.
//
// 3. State: checkpoints live in memory, in a SQL database (PostgreSQL,
// MySQL) or in Redis, keyed by "<state id>_<stream url>".
//
// # Quick Start
//
//	import (
//	    "context"
//
//	    "github.com/ajitpratap0/ldes-replicator/internal/pipeline"
//	    "github.com/ajitpratap0/ldes-replicator/pkg/config"
//	    _ "github.com/ajitpratap0/ldes-replicator/pkg/connector/destinations"
//	)
//
//	cfg, err := config.LoadReplicatorConfig("replicator.yaml")
//	if err != nil {
//	    return err
//	}
//	orch, err := pipeline.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer orch.Stop(context.Background())
//
//	_ = orch.Provision(ctx)
//	err = orch.Run(ctx)
//
// # Key Packages
//
//	internal/pipeline       - Orchestrator and per-stream state machine
//	pkg/connector           - Connector contract, registry and sinks
//	pkg/ldes                - Members, events, readers and stream shapes
//	pkg/rdf                 - JSON-LD member parsing and N-Triples terms
//	pkg/sparql              - SPARQL 1.1 protocol client
//	pkg/state               - Checkpoint stores
//	pkg/config              - YAML configuration
//	pkg/errors              - Structured error types
//
// # Command Line
//
//	ldes-replicator validate --config replicator.yaml
//	ldes-replicator list
//	ldes-replicator run --config replicator.yaml --metrics-address :9090
//	ldes-replicator reset --config replicator.yaml
//
// Every flag can also be set with an LDES_ prefixed environment variable,
// and a .env file in the working directory is loaded on start.
package replicator
