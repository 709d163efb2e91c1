// Package telemetry exposes Prometheus metrics for the crawl pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_jobs_total",
			Help: "Total number of crawl jobs finished, labeled by terminal status.",
		},
		[]string{"status"},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_fetches_total",
			Help: "Total number of URL fetch outcomes, labeled by domain and outcome.",
		},
		[]string{"domain", "outcome"},
	)

	duplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_duplicates_total",
			Help: "Total number of items rejected by the dedup gate, labeled by domain.",
		},
		[]string{"domain"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_rate_limit_delay_seconds",
			Help:    "Delay introduced by the per-domain rate limiter.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		},
		[]string{"domain"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// CountJob records a finished job's terminal status.
func CountJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// CountFetch records one URL fetch outcome ("success", "duplicate" or an
// error kind).
func CountFetch(domain, outcome string) {
	fetchesTotal.WithLabelValues(domain, outcome).Inc()
}

// CountDuplicate records a dedup rejection.
func CountDuplicate(domain string) {
	duplicatesTotal.WithLabelValues(domain).Inc()
}

// ObserveRateLimitDelay records how long the limiter held a caller.
func ObserveRateLimitDelay(domain string, delay time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(delay.Seconds())
}

// ObserveHTTPRequest records an API request latency.
func ObserveHTTPRequest(method, route string, elapsed time.Duration) {
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
