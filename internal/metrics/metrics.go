// Package metrics exposes Prometheus collectors for the service surface.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	exportsTotal               *prometheus.CounterVec
	storeQueriesTotal          *prometheus.CounterVec
	batchesTotal               *prometheus.CounterVec
	batchSizeJurisdictions     prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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

		exportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npidb_exports_total",
				Help: "Total number of agency exports, labeled by format and status.",
			},
			[]string{"format", "status"},
		)

		storeQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npidb_store_queries_total",
				Help: "Total number of store operations, labeled by op and status.",
			},
			[]string{"op", "status"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npidb_batches_total",
				Help: "Total number of batch runs, labeled by status.",
			},
			[]string{"status"},
		)

		batchSizeJurisdictions = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "npidb_batch_size_jurisdictions",
				Help:    "Histogram of jurisdictions per batch.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveExport counts one export in the given format.
func ObserveExport(format string, err error) {
	exportsTotal.WithLabelValues(format, statusLabel(err)).Inc()
}

// ObserveStoreQuery counts one store operation.
func ObserveStoreQuery(op string, err error) {
	storeQueriesTotal.WithLabelValues(op, statusLabel(err)).Inc()
}

// ObserveBatch counts one batch run and its size.
func ObserveBatch(size int, err error) {
	batchesTotal.WithLabelValues(statusLabel(err)).Inc()
	batchSizeJurisdictions.Observe(float64(size))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
