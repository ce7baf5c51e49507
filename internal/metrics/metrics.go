// Package metrics declares the Prometheus collectors exposed on /metrics.
//
// Collectors are package-level and registered with the default registry by
// promauto, so any package can record without plumbing a registry through.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maratonei_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maratonei_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	HTTPRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maratonei_http_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"group"},
	)

	// Outbound metadata calls (ai, tmdb)
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maratonei_upstream_requests_total",
			Help: "Total number of calls to external metadata services",
		},
		[]string{"upstream", "outcome"}, // outcome: success, error, rejected
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maratonei_upstream_request_duration_seconds",
			Help:    "Duration of calls to external metadata services",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"upstream"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "maratonei_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"upstream"},
	)

	// Search cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maratonei_cache_hits_total",
			Help: "Total number of search cache hits",
		},
		[]string{"kind"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maratonei_cache_misses_total",
			Help: "Total number of search cache misses",
		},
		[]string{"kind"},
	)

	// News bot
	NewsBotRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maratonei_newsbot_runs_total",
			Help: "Total number of news bot runs by result",
		},
		[]string{"result"}, // posted, duplicate, empty, error
	)

	NewsBotLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "maratonei_newsbot_last_run_timestamp_seconds",
			Help: "Unix time of the last completed news bot run",
		},
	)

	// Domain events
	ActivitiesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maratonei_activities_created_total",
			Help: "Total number of feed activities created",
		},
		[]string{"type"},
	)

	BadgeTrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maratonei_badge_trades_total",
			Help: "Total number of completed badge purchases",
		},
		[]string{"source"}, // shop, market
	)
)

// RecordHTTPRequest records one finished request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordUpstream records one outbound call.
func RecordUpstream(upstream, outcome string, d time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(upstream, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(upstream).Observe(d.Seconds())
}
