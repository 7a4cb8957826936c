// Package telemetry exposes Prometheus collectors for the service.
package telemetry

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
	searchesTotal              *prometheus.CounterVec
	jobsTotal                  *prometheus.CounterVec
	eventsScrapedTotal         *prometheus.CounterVec
	rateLimitRejectionsTotal   *prometheus.CounterVec
	rateLimitErrorsTotal       prometheus.Counter
	cacheOpsTotal              *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_searches_total",
				Help: "Total number of search requests, labeled by outcome source.",
			},
			[]string{"source"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_jobs_total",
				Help: "Total number of scrape jobs reaching a terminal state, labeled by status.",
			},
			[]string{"status"},
		)

		eventsScrapedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_events_scraped_total",
				Help: "Total number of events persisted by workers, labeled by platform.",
			},
			[]string{"platform"},
		)

		rateLimitRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_ratelimit_rejections_total",
				Help: "Total number of rate-limited requests, labeled by limiter scope.",
			},
			[]string{"scope"},
		)

		rateLimitErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_ratelimit_errors_total",
				Help: "Counter store failures observed by the rate limiter (requests fail open).",
			},
		)

		cacheOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_cache_ops_total",
				Help: "Result cache lookups, labeled by result (hit/miss/error).",
			},
			[]string{"result"},
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

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scout_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearch increments the search counter for the given source
// ("database", "job", "rejected", "error").
func ObserveSearch(source string) {
	searchesTotal.WithLabelValues(source).Inc()
}

// ObserveJob increments the terminal job counter for the given status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveEventsScraped adds persisted event counts for a platform.
func ObserveEventsScraped(platform string, count int) {
	if count > 0 {
		eventsScrapedTotal.WithLabelValues(platform).Add(float64(count))
	}
}

// ObserveRateLimitRejection increments the rejection counter for a limiter scope.
func ObserveRateLimitRejection(scope string) {
	rateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

// ObserveRateLimitError counts a counter-store failure.
func ObserveRateLimitError() {
	rateLimitErrorsTotal.Inc()
}

// ObserveCache increments the cache op counter ("hit", "miss", "error").
func ObserveCache(result string) {
	cacheOpsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
