// Package metrics exposes Prometheus collectors for the ingestion service.
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

// Outcomes recorded for upstream search requests.
const (
	OutcomeSuccess        = "success"
	OutcomeStatusError    = "status_error"
	OutcomeTransportError = "transport_error"
)

// Results recorded per ingested record.
const (
	RecordPersisted   = "persisted"
	RecordInvalid     = "invalid"
	RecordWriteFailed = "write_failed"
)

var (
	jobspyRequestsTotal          *prometheus.CounterVec
	jobspyRequestDurationSeconds prometheus.Histogram
	ingestRecordsTotal           *prometheus.CounterVec
	ingestRunsTotal              *prometheus.CounterVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobspyRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobspy_requests_total",
				Help: "Total number of search requests sent to JobSpy, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		jobspyRequestDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobspy_request_duration_seconds",
				Help:    "Histogram of JobSpy search round-trip latencies.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		)

		ingestRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_total",
				Help: "Total number of job records processed by the writer, labeled by result.",
			},
			[]string{"result"},
		)

		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Total number of ingest runs, labeled by status.",
			},
			[]string{"status"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveSearch records one upstream search round trip.
func ObserveSearch(outcome string, duration time.Duration) {
	Init()
	jobspyRequestsTotal.WithLabelValues(outcome).Inc()
	jobspyRequestDurationSeconds.Observe(duration.Seconds())
}

// ObserveRecord counts one record handled by the writer.
func ObserveRecord(result string) {
	Init()
	ingestRecordsTotal.WithLabelValues(result).Inc()
}

// ObserveRun counts one ingest run.
func ObserveRun(status string) {
	Init()
	ingestRunsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
