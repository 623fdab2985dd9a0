package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCount counts HTTP requests
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	// ComputationCount counts comparison runs by outcome
	ComputationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinscan_computations_total",
			Help: "Total number of comparison runs",
		},
		[]string{"status"},
	)

	// ComputationDuration measures run duration
	ComputationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "twinscan_computation_duration_seconds",
			Help:    "Comparison run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)

	// PairsComputed counts scored pairs by outcome
	PairsComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinscan_pairs_computed_total",
			Help: "Total number of file pairs scored",
		},
		[]string{"status"},
	)

	// ReportsExported counts diff reports by outcome
	ReportsExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinscan_reports_exported_total",
			Help: "Total number of diff reports written",
		},
		[]string{"status"},
	)

	// SubmissionsIngested counts stream messages by outcome
	SubmissionsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinscan_submissions_ingested_total",
			Help: "Total number of uploaded submissions processed from the stream",
		},
		[]string{"status"},
	)
)

// InitPrometheus registers all collectors with the default registry
func InitPrometheus() {
	prometheus.MustRegister(RequestCount)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ComputationCount)
	prometheus.MustRegister(ComputationDuration)
	prometheus.MustRegister(PairsComputed)
	prometheus.MustRegister(ReportsExported)
	prometheus.MustRegister(SubmissionsIngested)
}

// MetricsHandler returns Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
