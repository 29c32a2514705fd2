// Package telemetry exposes Prometheus metrics for the audit service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	auditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteaudit_audits_total",
			Help: "Total number of audit requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteaudit_cache_lookups_total",
			Help: "Total number of audit cache lookups, labeled by result.",
		},
		[]string{"result"},
	)

	fetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "siteaudit_fetch_duration_seconds",
			Help:    "Histogram of outbound fetch latencies.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteaudit_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "siteaudit_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// ObserveAudit counts one finished audit request by outcome
// (ok, cached, rate_limited, invalid_input, unsafe_target, fetch_failed).
func ObserveAudit(outcome string) {
	auditsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheLookup counts one cache lookup.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveFetch records one outbound fetch duration.
func ObserveFetch(d time.Duration) {
	fetchDurationSeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
