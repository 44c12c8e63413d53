package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indicator_runs_total",
			Help: "Total number of producer runs by final status",
		},
		[]string{"producer", "status"}, // status: completed, failed, rejected
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indicator_run_duration_seconds",
			Help:    "Duration of admitted producer runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"producer"},
	)

	RunGuardRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indicator_runguard_rejections_total",
			Help: "Total number of runs rejected because the same scope was in flight",
		},
		[]string{"producer"},
	)

	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indicator_runs_in_flight",
			Help: "Current number of admitted runs",
		},
	)

	// Per-result metrics
	ResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indicator_results_total",
			Help: "Total number of raw results handled by outcome",
		},
		[]string{"producer", "outcome"}, // outcome: processed, skipped, failed
	)

	// Indicator store writes
	IndicatorWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indicator_writes_total",
			Help: "Total number of indicator record writes by kind",
		},
		[]string{"producer", "kind"}, // kind: created, merged, duplicate
	)

	IndicatorWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indicator_write_errors_total",
			Help: "Total number of failed indicator writes for a single day",
		},
		[]string{"producer"},
	)

	// Attachment backend circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, not_found, invalid, canceled, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Trigger events
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indicator_events_consumed_total",
			Help: "Total number of trigger messages consumed by topic and outcome",
		},
		[]string{"topic", "outcome"}, // outcome: triggered, ignored, dropped, retried
	)

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordRun records the outcome of a finished run. Rejected runs never
// started, so they carry no duration.
func RecordRun(producer, status string, duration time.Duration) {
	RunsTotal.WithLabelValues(producer, status).Inc()
	if status != "rejected" {
		RunDuration.WithLabelValues(producer).Observe(duration.Seconds())
	}
}

// RecordResults adds the per-result counters of one run.
func RecordResults(producer string, processed, skipped, failed int) {
	ResultsTotal.WithLabelValues(producer, "processed").Add(float64(processed))
	ResultsTotal.WithLabelValues(producer, "skipped").Add(float64(skipped))
	ResultsTotal.WithLabelValues(producer, "failed").Add(float64(failed))
}

// RecordWrites adds the indicator write counters of one run.
func RecordWrites(producer string, created, merged, duplicates, errors int) {
	IndicatorWrites.WithLabelValues(producer, "created").Add(float64(created))
	IndicatorWrites.WithLabelValues(producer, "merged").Add(float64(merged))
	IndicatorWrites.WithLabelValues(producer, "duplicate").Add(float64(duplicates))
	if errors > 0 {
		IndicatorWriteErrors.WithLabelValues(producer).Add(float64(errors))
	}
}

// RecordAPIRequest records API request metrics
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordEvent records the handling outcome of one trigger message
func RecordEvent(topic, outcome string) {
	EventsConsumed.WithLabelValues(topic, outcome).Inc()
}
