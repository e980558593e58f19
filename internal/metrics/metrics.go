// Package metrics exposes Prometheus collectors for the regulation crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	documentsTotal             *prometheus.CounterVec
	relevanceScore             prometheus.Histogram
	healthAlertsTotal          *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	strategySelectionsTotal    *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regcrawler_fetch_attempts_total",
				Help: "Fetch attempts, labeled by strategy and outcome status.",
			},
			[]string{"strategy", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regcrawler_fetch_duration_seconds",
				Help:    "Latency of fetch attempts, labeled by strategy.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 60},
			},
			[]string{"strategy"},
		)

		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regcrawler_documents_total",
				Help: "Documents processed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		relevanceScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "regcrawler_relevance_score",
				Help:    "Distribution of document relevance scores.",
				Buckets: []float64{0, 3, 5, 8, 12, 20, 30, 50},
			},
		)

		healthAlertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regcrawler_health_alerts_total",
				Help: "URL health alerts raised, labeled by site.",
			},
			[]string{"site"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regcrawler_runs_total",
				Help: "Source runs finished, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regcrawler_run_duration_seconds",
				Help:    "Duration of source runs.",
				Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600},
			},
			[]string{"source"},
		)

		strategySelectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regcrawler_strategy_selections_total",
				Help: "Strategy selections, labeled by source, strategy, and how it was chosen.",
			},
			[]string{"source", "strategy", "reason"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regcrawler_rate_limit_delays_seconds",
				Help:    "Histogram of inter-request wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "regcrawler_active_workers",
				Help: "Number of workers currently running a source.",
			},
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one strategy attempt.
func ObserveFetch(strategy, status string, duration time.Duration) {
	Init()
	fetchAttemptsTotal.WithLabelValues(strategy, status).Inc()
	fetchDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveDocument records the pipeline outcome for one candidate URL.
func ObserveDocument(source, outcome string) {
	Init()
	documentsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveScore records a relevance score.
func ObserveScore(score int) {
	Init()
	relevanceScore.Observe(float64(score))
}

// ObserveHealthAlert counts an alert for the URL's site.
func ObserveHealthAlert(rawURL string) {
	Init()
	healthAlertsTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(source, status string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(source, status).Inc()
	runDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveStrategySelection records which strategy a run settled on.
func ObserveStrategySelection(source, strategy, reason string) {
	Init()
	strategySelectionsTotal.WithLabelValues(source, strategy, reason).Inc()
}

// ObserveRateLimitDelay records the duration of an inter-request wait.
func ObserveRateLimitDelay(source string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
