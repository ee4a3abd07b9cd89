package config_test

import (
	"fmt"
	"log"
	"time"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
)

// ExampleNewConnectorConfig demonstrates the defaults every connector starts from.
func ExampleNewConnectorConfig() {
	cfg := config.NewConnectorConfig("graphdb-batch")

	fmt.Printf("Flush Interval: %s\n", cfg.Performance.FlushInterval)
	fmt.Printf("Retention Interval: %s\n", cfg.Performance.RetentionInterval)
	fmt.Printf("Retry Attempts: %d\n", cfg.Reliability.RetryAttempts)

	// Output:
	// Flush Interval: 1s
	// Retention Interval: 10s
	// Retry Attempts: 3
}

// ExampleReplicatorConfig_Validate shows how to validate a configuration
// built in code before handing it to the orchestrator.
func ExampleReplicatorConfig_Validate() {
	cfg := config.NewReplicatorConfig("museum")

	graph := config.NewConnectorConfig("graphdb-materialized")
	graph.Settings["repository"] = "objects"
	graph.Versions = &config.VersionsConfig{
		Identifier: "http://purl.org/dc/terms/isVersionOf",
		Sorter:     "http://www.w3.org/ns/prov#generatedAtTime",
		Amount:     5,
	}
	graph.Performance.FlushInterval = 2 * time.Second
	cfg.Connectors["graph"] = graph

	cfg.Streams = append(cfg.Streams, config.StreamConfig{
		URL:  "https://example.org/objects",
		Name: "objects",
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")
	fmt.Println(cfg.ConnectorsFor(cfg.Streams[0]))

	// Output:
	// Configuration is valid!
	// [graph]
}

// ExampleParse demonstrates parsing a YAML document with environment
// variable substitution.
func ExampleParse() {
	doc := []byte(`
name: museum
state:
  type: redis
  settings:
    address: ${LDES_EXAMPLE_REDIS:-localhost:6379}
streams:
  - url: https://example.org/objects
    name: objects
connectors:
  graph:
    type: graphdb-batch
    settings:
      base_url: http://localhost:7200
`)

	var cfg config.ReplicatorConfig
	if err := config.Parse(doc, &cfg); err != nil {
		log.Fatal(err)
	}
	cfg.ApplyDefaults()

	fmt.Printf("State: %s at %s\n", cfg.State.Type, cfg.State.Settings["address"])
	fmt.Printf("State ID: %s\n", cfg.State.ID)
	fmt.Printf("Connector: %s\n", cfg.Connectors["graph"].Type)

	// Output:
	// State: redis at localhost:6379
	// State ID: museum
	// Connector: graphdb-batch
}
