// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "batch_worker"

var (
	// BatchesTotal counts processed batches by outcome (ok, fatal)
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total batches processed, labelled by outcome.",
		},
		[]string{"outcome"},
	)

	// BatchProcessingSeconds is a histogram for the full decode-validate-infer-pack cycle
	BatchProcessingSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_seconds",
			Help:      "Histogram of batch processing latency (seconds), excluding socket I/O.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// BatchSize is a histogram for tracking inbound batch sizes
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Histogram of job counts per inbound batch.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)

	// InvalidItemsTotal counts jobs answered with an error payload
	InvalidItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_items_total",
			Help:      "Jobs rejected before inference, labelled by reason (decode, schema).",
		},
		[]string{"reason"},
	)

	// InferenceLatencySeconds is a histogram for model-only latency
	InferenceLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Histogram of model inference latency (seconds).",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// CacheLookupsTotal counts result cache lookups by result (hit, miss, error)
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups, labelled by result.",
		},
		[]string{"result"},
	)

	// ReconnectsTotal counts connections lost while serving
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Connections to the batching front-end lost and re-dialed.",
		},
	)

	// DialFailuresTotal counts failed connection attempts
	DialFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_failures_total",
			Help:      "Failed attempts to connect to the batching front-end.",
		},
	)

	// ConnectionState reports the lifecycle state as a number
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Lifecycle state (0 disconnected, 1 connecting, 2 handshaking, 3 serving, 4 stopped).",
		},
	)

	// HealthStatus is a gauge indicating the health status of the service
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_status",
			Help:      "Health status of the worker (1 = serving, 0 = not serving).",
		},
	)
)

// RecordBatch records the outcome and latency of one processed batch
func RecordBatch(outcome string, seconds float64) {
	BatchesTotal.WithLabelValues(outcome).Inc()
	BatchProcessingSeconds.Observe(seconds)
}

// RecordBatchSize records the job count of an inbound batch
func RecordBatchSize(size int) {
	BatchSize.Observe(float64(size))
}

// RecordInvalidItem records one job rejected before inference
func RecordInvalidItem(reason string) {
	InvalidItemsTotal.WithLabelValues(reason).Inc()
}

// RecordInferenceLatency records the latency of an inference call
func RecordInferenceLatency(seconds float64) {
	InferenceLatencySeconds.Observe(seconds)
}

// RecordCacheLookup records one cache lookup result
func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordReconnect records a lost connection
func RecordReconnect() {
	ReconnectsTotal.Inc()
}

// RecordDialFailure records a failed connection attempt
func RecordDialFailure() {
	DialFailuresTotal.Inc()
}

// SetConnectionState publishes the lifecycle state
func SetConnectionState(state int) {
	ConnectionState.Set(float64(state))
}

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
