// Package metrics exposes Prometheus collectors for the harvester.
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
	harvesterDocumentsTotal       *prometheus.CounterVec
	harvesterBytesTotal           *prometheus.CounterVec
	harvesterImagesTotal          *prometheus.CounterVec
	harvesterRecordsTotal         *prometheus.CounterVec
	harvesterControllerStepsTotal *prometheus.CounterVec
	harvesterActiveWorkers        prometheus.Gauge
	harvesterPolitenessDelay      *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_documents_total",
				Help: "Article acquisitions, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		harvesterBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		harvesterImagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_images_total",
				Help: "Article images, labeled by status (stored, existing, failed).",
			},
			[]string{"status"},
		)

		harvesterRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Extraction results, labeled by status.",
			},
			[]string{"status"},
		)

		harvesterControllerStepsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_controller_steps_total",
				Help: "Crawl controller state entries, labeled by state.",
			},
			[]string{"state"},
		)

		harvesterActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of acquisition workers currently running.",
			},
		)

		harvesterPolitenessDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_politeness_delay_seconds",
				Help:    "Histogram of politeness and rate limit waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObserveDocument counts one acquisition outcome and the bytes it fetched.
func ObserveDocument(site string, outcome string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	harvesterDocumentsTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		harvesterBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveImage counts one image by status.
func ObserveImage(status string) {
	Init()
	harvesterImagesTotal.WithLabelValues(status).Inc()
}

// ObserveRecord counts one extraction result.
func ObserveRecord(status string) {
	Init()
	harvesterRecordsTotal.WithLabelValues(status).Inc()
}

// ObserveControllerStep counts an entry into a controller state.
func ObserveControllerStep(state string) {
	Init()
	harvesterControllerStepsTotal.WithLabelValues(state).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	harvesterActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	harvesterActiveWorkers.Dec()
}

// ObservePolitenessDelay records the duration of a politeness or rate limit wait.
func ObservePolitenessDelay(domain string, duration time.Duration) {
	Init()
	harvesterPolitenessDelay.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
