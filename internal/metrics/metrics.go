// Package metrics defines Prometheus metrics for labweave.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// HTTP metrics.
var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labweave_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labweave_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labweave_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labweave_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labweave_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

// Content store metrics.
var (
	ContentBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labweave_content_bytes_written_total",
			Help: "Bytes written to the content store",
		},
	)

	ContentDedupHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labweave_content_dedup_hits_total",
			Help: "Puts satisfied by content already stored",
		},
	)

	ContentIntegrityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labweave_content_integrity_failures_total",
			Help: "Content reads or writes that failed hash or length verification",
		},
	)

	ContentCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labweave_content_collected_total",
			Help: "Orphaned content objects deleted by garbage collection",
		},
	)
)

// Ledger metrics.
var (
	LedgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labweave_ledger_operations_total",
			Help: "Committed ledger operations by kind",
		},
		[]string{"op"},
	)

	EventPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labweave_event_publish_failures_total",
			Help: "Ledger events that could not be handed to a subscriber",
		},
	)
)

// Projection metrics.
var (
	ProjectionQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labweave_projection_queue_depth",
			Help: "Events waiting to be projected into the graph",
		},
	)

	ProjectionApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labweave_projection_applied_total",
			Help: "Events applied to the graph by type",
		},
		[]string{"type"},
	)

	GraphSyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labweave_graph_sync_failures_total",
			Help: "Failed attempts to apply an event to the graph",
		},
	)

	ProjectionDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labweave_projection_dropped_total",
			Help: "Events abandoned without being applied",
		},
	)

	GraphBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labweave_graph_breaker_state",
			Help: "Graph store circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal, RateLimited, WSConnections,
		ContentBytesWritten, ContentDedupHits, ContentIntegrityFailures, ContentCollected,
		LedgerOperations, EventPublishFailures,
		ProjectionQueueDepth, ProjectionApplied, GraphSyncFailures, ProjectionDropped,
		GraphBreakerState,
	)
}
