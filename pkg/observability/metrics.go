package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API call metrics
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbatch_requests_total",
			Help: "Total number of chat-completion calls",
		},
		[]string{"status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbatch_request_duration_seconds",
			Help:    "Chat-completion call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbatch_retries_total",
			Help: "Total number of retried chat-completion calls",
		},
	)

	inflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbatch_inflight_requests",
			Help: "Number of conversations holding a concurrency permit",
		},
	)

	// Batch metrics
	conversationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbatch_conversations_total",
			Help: "Total number of conversations by outcome",
		},
		[]string{"outcome"},
	)

	checkpointWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbatch_checkpoint_writes_total",
			Help: "Total number of checkpoint writes",
		},
		[]string{"status"},
	)

	initOnce sync.Once
)

// InitMetrics registers the metrics with the default Prometheus registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			requestsTotal,
			requestDuration,
			retriesTotal,
			inflightRequests,
			conversationsTotal,
			checkpointWritesTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records one chat-completion call
func RecordRequest(status string, duration time.Duration) {
	requestsTotal.WithLabelValues(status).Inc()
	requestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRetry counts a failed call that will be attempted again
func RecordRetry() {
	retriesTotal.Inc()
}

// RecordConversation records the outcome of one conversation
func RecordConversation(outcome string) {
	conversationsTotal.WithLabelValues(outcome).Inc()
}

// RecordCheckpointWrite records one checkpoint append
func RecordCheckpointWrite(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	checkpointWritesTotal.WithLabelValues(status).Inc()
}

// AddInflight adjusts the in-flight gauge by delta
func AddInflight(delta int) {
	inflightRequests.Add(float64(delta))
}
