// Package metrics exposes Prometheus collectors for the ingestion service.
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
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerFetchErrorsTotal    *prometheus.CounterVec
	ingestJobsTotal            *prometheus.CounterVec
	chunksIndexedTotal         prometheus.Counter
	questionsTotal             *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askmysite_crawler_pages_total",
				Help: "Pages handled by the crawler, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerFetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askmysite_crawler_fetch_errors_total",
				Help: "Fetch failures, labeled by error class.",
			},
			[]string{"class"},
		)

		ingestJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askmysite_ingest_jobs_total",
				Help: "Ingest jobs reaching a terminal state, labeled by state.",
			},
			[]string{"state"},
		)

		chunksIndexedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "askmysite_chunks_indexed_total",
				Help: "Chunks embedded and stored in the vector index.",
			},
		)

		questionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askmysite_questions_total",
				Help: "Questions answered, labeled by confidence tier.",
			},
			[]string{"confidence"},
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

// ObservePage counts a crawler page outcome ("fetched" or "discarded").
func ObservePage(site string, outcome string) {
	if crawlerPagesTotal == nil {
		return
	}
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveFetchError counts a classified fetch failure.
func ObserveFetchError(class string) {
	if crawlerFetchErrorsTotal == nil {
		return
	}
	crawlerFetchErrorsTotal.WithLabelValues(class).Inc()
}

// ObserveJob counts a job reaching a terminal state.
func ObserveJob(state string) {
	if ingestJobsTotal == nil {
		return
	}
	ingestJobsTotal.WithLabelValues(state).Inc()
}

// AddChunksIndexed counts chunks written to the vector index.
func AddChunksIndexed(n int) {
	if chunksIndexedTotal == nil || n <= 0 {
		return
	}
	chunksIndexedTotal.Add(float64(n))
}

// ObserveQuestion counts an answered question by confidence tier.
func ObserveQuestion(confidence string) {
	if questionsTotal == nil {
		return
	}
	questionsTotal.WithLabelValues(confidence).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
