package kafka

import (
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/registry"
)

func init() {
	registry.MustRegister(core.TypeKafka, NewConnector, &registry.ConnectorInfo{
		Description:  "Publishes members to a Kafka topic keyed by entity",
		Capabilities: []string{"direct_write", "ordered_per_entity"},
		Settings: map[string]string{
			"brokers":        "Comma separated broker list (default " + DefaultBrokers + ")",
			"topic":          "Topic (default: the stream name)",
			"client_id":      "Client id (default " + DefaultClientID + ")",
			"acks":           "all, 1 or 0 (default all)",
			"compression":    "none, gzip, snappy, lz4 or zstd",
			"tls":            "Enable TLS (true/false)",
			"sasl_mechanism": "PLAIN",
			"sasl_username":  "SASL user",
			"sasl_password":  "SASL password",
		},
	})
}
