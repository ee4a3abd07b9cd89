package mongodb

import (
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/registry"
)

func init() {
	registry.MustRegister(core.TypeMongoDB, NewConnector, &registry.ConnectorInfo{
		Description:  "Stores members as documents in a MongoDB collection",
		Capabilities: []string{"queued_write", "retention", "idempotent"},
		Settings: map[string]string{
			"connection_string": "MongoDB URI, overrides hostname/port/username/password",
			"hostname":          "Server host (default " + DefaultHostname + ")",
			"port":              "Server port (default " + DefaultPort + ")",
			"username":          "User name",
			"password":          "Password",
			"database":          "Database (default " + DefaultDatabase + ")",
			"collection":        "Collection (default: the stream name)",
		},
	})
}
