package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memberdir_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// RemoteReadFailures counts directory list fetches that failed and were
	// rendered as empty.
	RemoteReadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberdir_remote_read_failures_total",
		Help: "Total number of failed directory reads",
	}, []string{"resource"})

	// RemoteWriteFailures counts rejected profile mutations by operation and store code.
	RemoteWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberdir_remote_write_failures_total",
		Help: "Total number of rejected profile mutations",
	}, []string{"operation", "code"})

	// ReconcileAttempts counts reloads issued after a mutation, by policy and outcome.
	ReconcileAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberdir_reconcile_attempts_total",
		Help: "Total number of post-mutation reloads",
	}, []string{"policy", "outcome"})

	// ViewDerivationLatency records how long filter/sort/search takes per derivation.
	ViewDerivationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "memberdir_view_derivation_seconds",
		Help:    "Time spent deriving the visible directory list",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
	})

	// ActiveViews is the number of live per-session directory controllers.
	ActiveViews = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memberdir_active_views",
		Help: "Number of signed-in sessions holding a directory view",
	})

	// AuthEvents counts passwordless auth outcomes by step and result.
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberdir_auth_events_total",
		Help: "Total passwordless auth events",
	}, []string{"step", "result"})

	// WebSocketConnections is the gauge of active WebSocket connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memberdir_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberdir_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberdir_redis_errors_total",
		Help: "Total number of Redis command errors",
	}, []string{"command"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
