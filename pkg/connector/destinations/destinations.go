// Package destinations links every sink connector into the binary. Each
// connector package registers its types with the registry on import.
package destinations

import (
	// Import all destination connectors to trigger init() registration
	_ "github.com/ajitpratap0/ldes-replicator/pkg/connector/destinations/graphdb"
	_ "github.com/ajitpratap0/ldes-replicator/pkg/connector/destinations/jsonl"
	_ "github.com/ajitpratap0/ldes-replicator/pkg/connector/destinations/kafka"
	_ "github.com/ajitpratap0/ldes-replicator/pkg/connector/destinations/mongodb"
)
