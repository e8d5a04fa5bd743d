// Package telemetry exposes Prometheus metrics for the crawl, SERP and
// scoring pipelines.
package telemetry

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchwatch_pages_fetched_total",
			Help: "Total pages fetched, labeled by host and outcome.",
		},
		[]string{"host", "outcome"},
	)

	productsSavedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchwatch_products_saved_total",
			Help: "Products written, labeled by insert vs update.",
		},
		[]string{"kind"},
	)

	merchDetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchwatch_merch_detections_total",
			Help: "Merch-gate passes, labeled by detection signal.",
		},
		[]string{"signal"},
	)

	serpJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchwatch_serp_jobs_total",
			Help: "SERP jobs finished, labeled by terminal status.",
		},
		[]string{"status"},
	)

	keywordScoresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merchwatch_keyword_scores_total",
			Help: "Daily keyword metric rows upserted.",
		},
	)

	crawlDueGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "merchwatch_crawl_due_items",
			Help: "Items in the due set at the start of the last crawl run.",
		},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "merchwatch_fetch_duration_seconds",
			Help:    "Histogram of page fetch latencies, labeled by host.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchwatch_http_requests_total",
			Help: "Ops-server requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "merchwatch_http_request_duration_seconds",
			Help:    "Histogram of ops-server latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records ops-server metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.statusCode)).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, routePattern).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// SanitizeHost extracts a lowercase hostname label from a URL.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch records one page fetch.
func ObserveFetch(pageURL, outcome string, duration time.Duration) {
	host := SanitizeHost(pageURL)
	pagesFetchedTotal.WithLabelValues(host, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveProductSaved records one product write.
func ObserveProductSaved(inserted bool) {
	kind := "update"
	if inserted {
		kind = "insert"
	}
	productsSavedTotal.WithLabelValues(kind).Inc()
}

// ObserveMerchDetection records which signal passed the merch gate.
func ObserveMerchDetection(signal string) {
	merchDetectionsTotal.WithLabelValues(signal).Inc()
}

// ObserveSerpJob records a finished SERP job.
func ObserveSerpJob(status string) {
	serpJobsTotal.WithLabelValues(status).Inc()
}

// ObserveKeywordScore counts one upserted keyword metrics row.
func ObserveKeywordScore() {
	keywordScoresTotal.Inc()
}

// SetCrawlDue records the due-set size for the current run.
func SetCrawlDue(count int) {
	crawlDueGauge.Set(float64(count))
}
