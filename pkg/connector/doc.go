// Package connector groups the sink side of the replicator.
//
// # Architecture Overview
//
//   - core: the Connector contract (Provision, WriteVersion, Stop), the
//     factory Params and the built-in type tags.
//
//   - base: BaseConnector with the shared pieces every sink embeds: shape
//     precondition checks, retry policy, the generic Flusher that batches
//     queued writes, periodic tasks and the RetentionEnforcer.
//
//   - registry: maps type tags to factories. Connector packages register
//     themselves from init and describe their settings for the catalog.
//
//   - destinations: the sinks. graphdb (direct, batch and materialized
//     writes through SPARQL), mongodb, kafka and jsonl.
//
// # Write Modes
//
// Direct connectors perform the remote write inside WriteVersion, so a
// failure is reported for that member. Queued connectors only validate and
// enqueue; a flusher drains the queue every flush_interval and on Stop.
// A batch that fails with a retryable error is put back at the head of the
// queue so the order of operations is kept.
//
// # Versions
//
// Connectors that materialize entities or enforce retention need the
// stream's shape to contain the configured versions.identifier (and the
// versions.sorter for retention). These preconditions are checked in
// Provision before any connection is opened:
//
//	if err := c.RequireVersionFields(true); err != nil {
//		return err
//	}
//
// # Adding a Connector
//
//	func init() {
//		registry.MustRegister("my-sink", NewConnector, &registry.ConnectorInfo{
//			Description: "Writes members to my sink",
//			Settings:    map[string]string{"url": "endpoint of the sink"},
//		})
//	}
//
// The factory receives core.Params and must not perform I/O; connections are
// opened in Provision.
package connector
