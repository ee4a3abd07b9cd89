package jsonl

import (
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/registry"
)

func init() {
	registry.MustRegister(core.TypeJSONL, NewConnector, &registry.ConnectorInfo{
		Description:  "Appends members to a line-delimited JSON file",
		Capabilities: []string{"queued_write", "compression"},
		Settings: map[string]string{
			"path":              "File path, {stream} is replaced by the stream name (default " + DefaultPath + ")",
			"compression":       "none, gzip, snappy, lz4, zstd or s2 (default none)",
			"compression_level": "fastest, default, better or best",
			"buffer_size":       "Write buffer size in bytes",
			"fsync":             "Sync the file after every flush (true/false)",
		},
	})
}
