// Package metrics exposes Prometheus collectors for the scraper service.
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
	scraperJobsTotal              *prometheus.CounterVec
	scraperJobDurationSeconds     *prometheus.HistogramVec
	scraperJobSoftTimeoutsTotal   *prometheus.CounterVec
	scraperLiveSessions           prometheus.Gauge
	scraperSessionCreateFailures  *prometheus.CounterVec
	scraperExtractAttemptsTotal   *prometheus.CounterVec
	scraperDedupHitsTotal         *prometheus.CounterVec
	scraperWebhookFailuresTotal   prometheus.Counter
	scraperActiveWorkers          prometheus.Gauge
	scraperRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every helper calls it.
func Init() {
	once.Do(func() {
		scraperJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total number of job attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scraperJobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_job_duration_seconds",
				Help:    "Histogram of job attempt wall-clock time, labeled by site.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"site"},
		)

		scraperJobSoftTimeoutsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_job_soft_timeouts_total",
				Help: "Job attempts that exceeded the soft time limit, labeled by site.",
			},
			[]string{"site"},
		)

		scraperLiveSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_live_browser_sessions",
				Help: "Number of browser sessions created and not yet destroyed.",
			},
		)

		scraperSessionCreateFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_session_create_failures_total",
				Help: "Failed browser session creation attempts, labeled by site.",
			},
			[]string{"site"},
		)

		scraperExtractAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_extract_attempts_total",
				Help: "Extraction attempts, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		scraperDedupHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_dedup_hits_total",
				Help: "Jobs skipped because the URL was already scraped, labeled by site.",
			},
			[]string{"site"},
		)

		scraperWebhookFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_webhook_failures_total",
				Help: "Webhook deliveries that failed.",
			},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		scraperRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of per-site rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob records one job attempt outcome and its duration.
func ObserveJob(site, outcome string, duration time.Duration) {
	Init()
	scraperJobsTotal.WithLabelValues(site, outcome).Inc()
	scraperJobDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveSoftTimeout counts a job attempt that ran past its soft limit.
func ObserveSoftTimeout(site string) {
	Init()
	scraperJobSoftTimeoutsTotal.WithLabelValues(site).Inc()
}

// IncLiveSessions increments the live browser session gauge.
func IncLiveSessions() {
	Init()
	scraperLiveSessions.Inc()
}

// DecLiveSessions decrements the live browser session gauge.
func DecLiveSessions() {
	Init()
	scraperLiveSessions.Dec()
}

// ObserveSessionCreateFailure counts a failed session creation attempt.
func ObserveSessionCreateFailure(site string) {
	Init()
	scraperSessionCreateFailures.WithLabelValues(site).Inc()
}

// ObserveExtractAttempt counts one extraction attempt by result.
func ObserveExtractAttempt(site, result string) {
	Init()
	scraperExtractAttemptsTotal.WithLabelValues(site, result).Inc()
}

// ObserveDedupHit counts a job short-circuited by the dedup gate.
func ObserveDedupHit(site string) {
	Init()
	scraperDedupHitsTotal.WithLabelValues(site).Inc()
}

// ObserveWebhookFailure counts a failed webhook delivery.
func ObserveWebhookFailure() {
	Init()
	scraperWebhookFailuresTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	scraperActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	scraperRateLimitDelaysSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
