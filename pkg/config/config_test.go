package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
)

const sampleConfig = `
name: museum
state:
  type: sql
  id: prod
  settings:
    driver: pgx
    dsn: ${LDES_TEST_DSN}
streams:
  - url: https://example.org/objects
    name: objects
    polling_interval: 30s
    shape:
      - path: http://purl.org/dc/terms/isVersionOf
        datatype: http://www.w3.org/2001/XMLSchema#anyURI
        min_count: 1
    connectors: [graph]
connectors:
  graph:
    type: graphdb-materialized
    settings:
      repository: objects
      rate_limit: 20
    versions:
      identifier: http://purl.org/dc/terms/isVersionOf
      sorter: http://www.w3.org/ns/prov#generatedAtTime
      amount: 3
    performance:
      flush_interval: 250ms
  archive:
    type: jsonl
    settings:
      path: /tmp/{stream}.jsonl
logging:
  level: debug
`

func TestLoadReplicatorConfig(t *testing.T) {
	t.Setenv("LDES_TEST_DSN", "postgres://localhost/ldes")

	path := filepath.Join(t.TempDir(), "replicator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadReplicatorConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sql", cfg.State.Type)
	assert.Equal(t, "prod", cfg.State.ID)
	assert.Equal(t, "postgres://localhost/ldes", cfg.State.Settings["dsn"])

	require.Len(t, cfg.Streams, 1)
	stream := cfg.Streams[0]
	assert.Equal(t, 30*time.Second, stream.PollingInterval)
	require.Len(t, stream.Shape, 1)
	require.NotNil(t, stream.Shape[0].MinCount)
	assert.Equal(t, 1, *stream.Shape[0].MinCount)
	assert.Equal(t, []string{"graph"}, cfg.ConnectorsFor(stream))

	graph := cfg.Connectors["graph"]
	assert.Equal(t, 250*time.Millisecond, graph.Performance.FlushInterval)
	assert.Equal(t, DefaultRetentionInterval, graph.Performance.RetentionInterval)
	assert.Equal(t, 3, graph.RetentionLimit())
	assert.Equal(t, "20", graph.Settings["rate_limit"])

	rate, err := graph.FloatSetting("rate_limit", 0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, rate)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Encoding)
	assert.Equal(t, DefaultMetricsAddress, cfg.Metrics.Address)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadReplicatorConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestReplicatorConfig_Validate(t *testing.T) {
	valid := func() *ReplicatorConfig {
		cfg := NewReplicatorConfig("test")
		cfg.Streams = []StreamConfig{{URL: "https://example.org/s", Name: "s"}}
		cfg.Connectors["c"] = NewConnectorConfig("jsonl")
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*ReplicatorConfig)
		errMsg string
	}{
		{"valid", func(*ReplicatorConfig) {}, ""},
		{"no streams", func(c *ReplicatorConfig) { c.Streams = nil }, "at least one stream"},
		{"no connectors", func(c *ReplicatorConfig) { c.Connectors = map[string]ConnectorConfig{} }, "at least one connector"},
		{"missing url", func(c *ReplicatorConfig) { c.Streams[0].URL = "" }, "url is required"},
		{"missing name", func(c *ReplicatorConfig) { c.Streams[0].Name = "" }, "name is required"},
		{"duplicate name", func(c *ReplicatorConfig) {
			c.Streams = append(c.Streams, StreamConfig{URL: "https://example.org/t", Name: "s"})
		}, "duplicate stream name"},
		{"negative polling", func(c *ReplicatorConfig) { c.Streams[0].PollingInterval = -time.Second }, "polling_interval"},
		{"unknown connector ref", func(c *ReplicatorConfig) { c.Streams[0].Connectors = []string{"nope"} }, "unknown connector"},
		{"missing type", func(c *ReplicatorConfig) {
			conn := c.Connectors["c"]
			conn.Type = ""
			c.Connectors["c"] = conn
		}, "type is required"},
		{"negative amount", func(c *ReplicatorConfig) {
			conn := c.Connectors["c"]
			conn.Versions = &VersionsConfig{Amount: -1}
			c.Connectors["c"] = conn
		}, "versions.amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConnectorConfig_Settings(t *testing.T) {
	c := NewConnectorConfig("mongodb")
	c.Settings["port"] = "27017"
	c.Settings["brokers"] = "a:9092, b:9092,,"
	c.Settings["bad"] = "x"

	assert.Equal(t, "fallback", c.Setting("missing", "fallback"))

	port, err := c.IntSetting("port", 0)
	require.NoError(t, err)
	assert.Equal(t, 27017, port)

	def, err := c.IntSetting("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, def)

	_, err = c.IntSetting("bad", 0)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	assert.Equal(t, []string{"a:9092", "b:9092"}, c.ListSetting("brokers"))
	assert.Nil(t, c.ListSetting("missing"))
	assert.Equal(t, 0, c.RetentionLimit())
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("LDES_SET", "value")

	assert.Equal(t, "a=value b= c=fallback d=value",
		substituteEnvVars("a=${LDES_SET} b=${LDES_UNSET} c=${LDES_UNSET:-fallback} d=${LDES_SET:-fallback}"))
}

func TestSave_RoundTrip(t *testing.T) {
	cfg := NewReplicatorConfig("roundtrip")
	cfg.Streams = []StreamConfig{{URL: "https://example.org/s", Name: "s"}}
	cfg.Connectors["c"] = NewConnectorConfig("kafka")

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadReplicatorConfig(path)
	require.NoError(t, err)
	require.Len(t, loaded.Streams, 1)
	assert.Equal(t, "https://example.org/s", loaded.Streams[0].URL)
	assert.Equal(t, cfg.Connectors["c"].Performance, loaded.Connectors["c"].Performance)
	assert.Equal(t, "kafka", loaded.Connectors["c"].Type)
}
