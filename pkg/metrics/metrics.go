// Package metrics provides Prometheus instrumentation for the replicator.
//
// # Overview
//
// Every metric is registered on the default registry through promauto and
// carries the "ldes_" prefix. The CLI exposes them with promhttp when
// metrics are enabled in the configuration.
//
// # Basic Usage
//
//	// Count a dispatched member
//	metrics.MembersProcessed.WithLabelValues("museum").Inc()
//
//	// Time a flush
//	timer := metrics.NewTimer()
//	err := flush(ctx)
//	metrics.FlushDuration.WithLabelValues("graph").Observe(timer.Stop().Seconds())
//
// # Metric Types
//
// Counter: members, pages, writes, flushed operations, retention deletions
// Gauge: queue depth per connector
// Histogram: flush and dispatch latency
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// MembersProcessed counts members dispatched to the connectors of a stream.
	// Labels: stream
	MembersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldes_members_processed_total",
			Help: "Total number of members dispatched to connectors",
		},
		[]string{"stream"},
	)

	// PagesProcessed counts page checkpoints.
	// Labels: stream, status (success/failure)
	PagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldes_pages_processed_total",
			Help: "Total number of page checkpoints written",
		},
		[]string{"stream", "status"},
	)

	// ConnectorWrites counts WriteVersion calls.
	// Labels: connector, status (success/failure)
	ConnectorWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldes_connector_writes_total",
			Help: "Total number of member writes per connector",
		},
		[]string{"connector", "status"},
	)

	// DispatchLatency tracks how long all connectors of a stream took to
	// accept one member.
	// Labels: stream
	DispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ldes_dispatch_latency_seconds",
			Help:    "Time for all connectors of a stream to accept a member",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"stream"},
	)

	// QueueDepth tracks the number of operations queued by a connector.
	// Labels: connector
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ldes_queue_depth",
			Help: "Current number of queued write operations",
		},
		[]string{"connector"},
	)

	// FlushedOperations counts queued operations handed to a sink.
	// Labels: connector, status (success/failure)
	FlushedOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldes_flushed_operations_total",
			Help: "Total number of queued operations flushed",
		},
		[]string{"connector", "status"},
	)

	// FlushDuration tracks flush latency.
	// Labels: connector
	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ldes_flush_duration_seconds",
			Help:    "Duration of queue flushes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connector"},
	)

	// RetentionDeleted counts versions removed by retention passes.
	// Labels: connector
	RetentionDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldes_retention_deleted_versions_total",
			Help: "Total number of versions deleted by retention",
		},
		[]string{"connector"},
	)

	// RetentionSkipped counts retention ticks skipped because a pass was
	// still running.
	// Labels: connector
	RetentionSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldes_retention_skipped_total",
			Help: "Retention ticks skipped while a pass was running",
		},
		[]string{"connector"},
	)
)

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
//
// Example:
//
//	timer := metrics.NewTimer()
//	processBatch(records)
//	logger.Info("batch processed", zap.Duration("duration", timer.Stop()))
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on h in seconds and returns it
func (t *Timer) ObserveDuration(h prometheus.Observer) time.Duration {
	d := t.Stop()
	h.Observe(d.Seconds())
	return d
}
