// Package metrics exposes Prometheus collectors for the citation pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stageExecutionsTotal       *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	processingResultsTotal     *prometheus.CounterVec
	integrityIssuesTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeBatchWorkers         prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		stageExecutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citepipe_stage_executions_total",
				Help: "Total processing stage executions, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "citepipe_stage_duration_seconds",
				Help:    "Histogram of processing stage latencies, labeled by stage.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"stage"},
		)

		processingResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citepipe_processing_results_total",
				Help: "Total completed process runs, labeled by resulting state.",
			},
			[]string{"state"},
		)

		integrityIssuesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citepipe_integrity_issues_total",
				Help: "Total integrity issues detected, labeled by issue type.",
			},
			[]string{"issue"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeBatchWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "citepipe_active_batch_workers",
				Help: "Number of batch workers currently processing a URL.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStage records one stage execution and its latency.
func ObserveStage(stage, outcome string, duration time.Duration) {
	stageExecutionsTotal.WithLabelValues(stage, outcome).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveProcessingResult increments the run counter for a resulting state.
func ObserveProcessingResult(state string) {
	processingResultsTotal.WithLabelValues(state).Inc()
}

// ObserveIntegrityIssue increments the issue counter for the given type.
func ObserveIntegrityIssue(issue string) {
	integrityIssuesTotal.WithLabelValues(issue).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active batch workers gauge.
func IncActiveWorkers() {
	activeBatchWorkers.Inc()
}

// DecActiveWorkers decrements the active batch workers gauge.
func DecActiveWorkers() {
	activeBatchWorkers.Dec()
}
