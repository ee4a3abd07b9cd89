package graphdb

import (
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/registry"
)

var commonSettings = map[string]string{
	"base_url":        "GraphDB server URL (default " + DefaultBaseURL + ")",
	"repository":      "Repository name (default " + DefaultRepository + ")",
	"query_endpoint":  "Overrides the repository query endpoint",
	"update_endpoint": "Overrides the repository update endpoint",
	"graph_prefix":    "Prefix of the named graph, followed by the stream name (default " + DefaultGraphPrefix + ")",
	"username":        "Basic auth user",
	"password":        "Basic auth password",
}

func withSettings(extra map[string]string) map[string]string {
	out := make(map[string]string, len(commonSettings)+len(extra))
	for k, v := range commonSettings {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func init() {
	registry.MustRegister(core.TypeGraphDB, NewDirectConnector, &registry.ConnectorInfo{
		Description:  "Writes every member to a SPARQL repository with one INSERT DATA request",
		Capabilities: []string{"direct_write"},
		Settings:     withSettings(nil),
	})

	registry.MustRegister(core.TypeGraphDBBatch, NewBatchConnector, &registry.ConnectorInfo{
		Description:  "Queues INSERT DATA operations and flushes them as one update request",
		Capabilities: []string{"queued_write", "retention"},
		Settings:     withSettings(nil),
	})

	registry.MustRegister(core.TypeGraphDBMaterialized, NewMaterializedConnector, &registry.ConnectorInfo{
		Description:  "Keeps the latest version of every entity, optionally with a bounded version history",
		Capabilities: []string{"queued_write", "materialization", "retention", "lucene_index"},
		Settings: withSettings(map[string]string{
			"lucene_label": "Comma separated property chain indexed by a GraphDB Lucene connector",
		}),
	})
}
