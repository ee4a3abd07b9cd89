// Package config provides the configuration document of the replicator.
// A single ReplicatorConfig describes the state store, the streams to
// replicate and the named sink connectors each stream fans out to.
//
// The configuration is organized into logical sections:
//   - State: which checkpoint store backs the streams
//   - Streams: source URL, name, shape and polling interval per stream
//   - Connectors: type tag, free-form settings and version handling per sink
//   - Logging, Metrics, Tracing: ambient observability settings
//
// Every connector carries the same Performance, Timeouts and Reliability
// sections so flush cadence, retention cadence and retry behaviour are
// configured identically across sink types.
//
// Example usage:
//
//	cfg, err := config.LoadReplicatorConfig("replicator.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
)

// ReplicatorConfig is the root configuration document
type ReplicatorConfig struct {
	// Name identifies the replicator instance
	Name string `yaml:"name" json:"name"`

	// State selects and configures the checkpoint store
	State StateConfig `yaml:"state" json:"state"`

	// Streams lists the event streams to replicate
	Streams []StreamConfig `yaml:"streams" json:"streams"`

	// Connectors maps connector names to their configuration
	Connectors map[string]ConnectorConfig `yaml:"connectors" json:"connectors"`

	Logging logger.Config `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// StateConfig configures the checkpoint store
type StateConfig struct {
	// Type is one of memory, sql or redis
	Type string `yaml:"type" json:"type"`
	// ID namespaces the stored checkpoints. Each stream's identity is
	// "<id>_<stream url>".
	ID string `yaml:"id" json:"id"`
	// Settings are store specific (dsn, driver, table, address, ...)
	Settings map[string]string `yaml:"settings" json:"settings"`
}

// StreamConfig describes one replicated stream
type StreamConfig struct {
	// URL is the stream's root URL
	URL string `yaml:"url" json:"url"`
	// Name is used for sink namespaces (graph names, collections, topics)
	Name string `yaml:"name" json:"name"`
	// PollingInterval enables polling for new pages when positive
	PollingInterval time.Duration `yaml:"polling_interval" json:"polling_interval"`
	// Shape lists the fields members of this stream carry
	Shape ldes.Shape `yaml:"shape" json:"shape"`
	// Connectors restricts the stream to a subset of the configured
	// connectors. Empty means all of them.
	Connectors []string `yaml:"connectors" json:"connectors"`
}

// ConnectorConfig configures one named sink connector
type ConnectorConfig struct {
	// Type is the registered connector type tag (e.g. "graphdb-batch")
	Type string `yaml:"type" json:"type"`

	// Settings holds the connector specific options
	Settings map[string]string `yaml:"settings" json:"settings"`

	// Versions enables version materialization and/or retention
	Versions *VersionsConfig `yaml:"versions,omitempty" json:"versions,omitempty"`

	// Performance settings control flush and retention cadence
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Timeouts define request and connection timeouts
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for retries and rate limiting
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`
}

// VersionsConfig tells a connector how versions relate to entities
type VersionsConfig struct {
	// Identifier is the property linking a version to its entity
	// (e.g. http://purl.org/dc/terms/isVersionOf)
	Identifier string `yaml:"identifier" json:"identifier"`
	// Sorter is the property ordering versions of one entity
	// (e.g. http://www.w3.org/ns/prov#generatedAtTime)
	Sorter string `yaml:"sorter" json:"sorter"`
	// Amount is the number of versions kept per entity. Zero disables retention.
	Amount int `yaml:"amount" json:"amount"`
}

// PerformanceConfig contains the timer settings of queued connectors
type PerformanceConfig struct {
	// FlushInterval triggers periodic queue flushes
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
	// RetentionInterval triggers periodic retention passes
	RetentionInterval time.Duration `yaml:"retention_interval" json:"retention_interval"`
	// MaxBatchSize caps the number of operations sent in one flush (0 = unlimited)
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size"`
}

// TimeoutConfig contains all timeout-related settings
type TimeoutConfig struct {
	// Request timeout for individual operations
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
}

// ReliabilityConfig contains retry settings shared by flush and retention
type ReliabilityConfig struct {
	// RetryAttempts sets maximum attempts for a failed operation
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// CircuitBreaker enables the circuit breaker of HTTP based sinks
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// TracingConfig configures OpenTelemetry tracing
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"service_name" json:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// Default values applied by ApplyDefaults
const (
	DefaultStateType         = "memory"
	DefaultStateID           = "ldes"
	DefaultFlushInterval     = time.Second
	DefaultRetentionInterval = 10 * time.Second
	DefaultRetryAttempts     = 3
	DefaultRetryDelay        = 500 * time.Millisecond
	DefaultRetryMultiplier   = 2.0
	DefaultMaxRetryDelay     = 10 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultConnectionTimeout = 10 * time.Second
	DefaultMetricsAddress    = ":9090"
	DefaultServiceName       = "ldes-replicator"
)

// NewReplicatorConfig creates a configuration with defaults applied and no
// streams or connectors.
func NewReplicatorConfig(name string) *ReplicatorConfig {
	cfg := &ReplicatorConfig{
		Name:       name,
		Connectors: make(map[string]ConnectorConfig),
	}
	cfg.ApplyDefaults()
	return cfg
}

// NewConnectorConfig creates a connector configuration with defaults applied
func NewConnectorConfig(connectorType string) ConnectorConfig {
	c := ConnectorConfig{Type: connectorType, Settings: make(map[string]string)}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every unset field with its default
func (c *ReplicatorConfig) ApplyDefaults() {
	if c.State.Type == "" {
		c.State.Type = DefaultStateType
	}
	if c.State.ID == "" {
		c.State.ID = c.Name
	}
	if c.State.ID == "" {
		c.State.ID = DefaultStateID
	}
	if c.State.Settings == nil {
		c.State.Settings = make(map[string]string)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddress
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}

	for name, conn := range c.Connectors {
		conn.ApplyDefaults()
		c.Connectors[name] = conn
	}
}

// ApplyDefaults fills every unset connector field with its default
func (c *ConnectorConfig) ApplyDefaults() {
	if c.Settings == nil {
		c.Settings = make(map[string]string)
	}
	if c.Performance.FlushInterval == 0 {
		c.Performance.FlushInterval = DefaultFlushInterval
	}
	if c.Performance.RetentionInterval == 0 {
		c.Performance.RetentionInterval = DefaultRetentionInterval
	}
	if c.Timeouts.Request == 0 {
		c.Timeouts.Request = DefaultRequestTimeout
	}
	if c.Timeouts.Connection == 0 {
		c.Timeouts.Connection = DefaultConnectionTimeout
	}
	if c.Reliability.RetryAttempts == 0 {
		c.Reliability.RetryAttempts = DefaultRetryAttempts
	}
	if c.Reliability.RetryDelay == 0 {
		c.Reliability.RetryDelay = DefaultRetryDelay
	}
	if c.Reliability.RetryMultiplier == 0 {
		c.Reliability.RetryMultiplier = DefaultRetryMultiplier
	}
	if c.Reliability.MaxRetryDelay == 0 {
		c.Reliability.MaxRetryDelay = DefaultMaxRetryDelay
	}
}

// Validate validates the configuration for correctness. Connector specific
// preconditions that depend on a stream's shape are checked when the
// connector is provisioned.
func (c *ReplicatorConfig) Validate() error {
	if len(c.Streams) == 0 {
		return errors.New(errors.ErrorTypeConfig, "at least one stream is required")
	}
	if len(c.Connectors) == 0 {
		return errors.New(errors.ErrorTypeConfig, "at least one connector is required")
	}

	names := make(map[string]bool, len(c.Streams))
	for i, s := range c.Streams {
		if s.URL == "" {
			return errors.Newf(errors.ErrorTypeConfig, "streams[%d]: url is required", i)
		}
		if s.Name == "" {
			return errors.Newf(errors.ErrorTypeConfig, "streams[%d]: name is required", i)
		}
		if names[s.Name] {
			return errors.Newf(errors.ErrorTypeConfig, "streams[%d]: duplicate stream name %q", i, s.Name)
		}
		names[s.Name] = true
		if s.PollingInterval < 0 {
			return errors.Newf(errors.ErrorTypeConfig, "stream %s: polling_interval cannot be negative", s.Name)
		}
		for _, ref := range s.Connectors {
			if _, ok := c.Connectors[ref]; !ok {
				return errors.Newf(errors.ErrorTypeConfig, "stream %s: unknown connector %q", s.Name, ref)
			}
		}
	}

	for name, conn := range c.Connectors {
		if err := conn.Validate(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "connector "+name)
		}
	}
	return nil
}

// ConnectorsFor returns the names of the connectors a stream fans out to,
// sorted for stable ordering.
func (c *ReplicatorConfig) ConnectorsFor(stream StreamConfig) []string {
	if len(stream.Connectors) > 0 {
		return sortedCopy(stream.Connectors)
	}
	names := make([]string, 0, len(c.Connectors))
	for name := range c.Connectors {
		names = append(names, name)
	}
	return sortedCopy(names)
}

// Validate checks the connector sections
func (c *ConnectorConfig) Validate() error {
	if c.Type == "" {
		return errors.New(errors.ErrorTypeConfig, "type is required")
	}
	if c.Versions != nil && c.Versions.Amount < 0 {
		return errors.New(errors.ErrorTypeConfig, "versions.amount cannot be negative")
	}
	if c.Performance.FlushInterval <= 0 {
		return errors.New(errors.ErrorTypeConfig, "flush_interval must be positive")
	}
	if c.Performance.RetentionInterval <= 0 {
		return errors.New(errors.ErrorTypeConfig, "retention_interval must be positive")
	}
	if c.Reliability.RetryAttempts < 1 {
		return errors.New(errors.ErrorTypeConfig, "retry_attempts must be at least 1")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return errors.New(errors.ErrorTypeConfig, "rate_limit_per_sec cannot be negative")
	}
	return nil
}

// RetentionLimit returns the number of versions to keep, 0 when retention
// is disabled
func (c *ConnectorConfig) RetentionLimit() int {
	if c.Versions == nil {
		return 0
	}
	return c.Versions.Amount
}

// Setting returns a setting or def when unset
func (c *ConnectorConfig) Setting(key, def string) string {
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return def
}

// IntSetting returns an integer setting or def when unset
func (c *ConnectorConfig) IntSetting(key string, def int) (int, error) {
	v, ok := c.Settings[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConfig, "invalid integer setting").WithDetail("setting", key)
	}
	return n, nil
}

// FloatSetting returns a float setting or def when unset
func (c *ConnectorConfig) FloatSetting(key string, def float64) (float64, error) {
	v, ok := c.Settings[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConfig, "invalid number setting").WithDetail("setting", key)
	}
	return f, nil
}

// ListSetting splits a comma separated setting
func (c *ConnectorConfig) ListSetting(key string) []string {
	v := c.Settings[key]
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
