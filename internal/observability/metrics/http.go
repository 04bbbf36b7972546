package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cvgram"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	catalogOpsTotal   *prometheus.CounterVec
	searchResults     *prometheus.HistogramVec
	searchDuration    *prometheus.HistogramVec
	uploadBytes       *prometheus.HistogramVec
	rateLimitedTotal  *prometheus.CounterVec
	authFailuresTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	catalogOpsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "operations_total",
			Help:      "Catalog operations by outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "search_results",
			Help:      "Distribution of records returned per search.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
		[]string{"service", "filtered"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "search_duration_seconds",
			Help:      "Catalog search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "filtered"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "size_bytes",
			Help:      "Size of accepted CV uploads.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 10),
		},
		[]string{"service"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by rate limiting or backpressure.",
		},
		[]string{"service", "reason"},
	)
	authFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Rejected bearer tokens by scheme.",
		},
		[]string{"service", "scheme"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		catalogOpsTotal,
		searchResults,
		searchDuration,
		uploadBytes,
		rateLimitedTotal,
		authFailuresTotal,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		catalogOpsTotal:   catalogOpsTotal,
		searchResults:     searchResults,
		searchDuration:    searchDuration,
		uploadBytes:       uploadBytes,
		rateLimitedTotal:  rateLimitedTotal,
		authFailuresTotal: authFailuresTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses path parameters so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/cvs/user/"):
		return "/api/cvs/user/{email}"
	case strings.HasPrefix(path, "/api/cvs/") && strings.HasSuffix(path, "/download-url"):
		return "/api/cvs/{cv_id}/download-url"
	case strings.HasPrefix(path, "/blobs/"):
		return "/blobs/{key}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordCatalogOperation(service, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.catalogOpsTotal.WithLabelValues(service, operation, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordSearch(service string, filtered bool, results int, duration time.Duration) {
	label := strconv.FormatBool(filtered)
	m.searchResults.WithLabelValues(service, label).Observe(float64(results))
	m.searchDuration.WithLabelValues(service, label).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordUpload(service string, size int64) {
	if size <= 0 {
		return
	}
	m.uploadBytes.WithLabelValues(service).Observe(float64(size))
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.rateLimitedTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordAuthFailure(service, scheme string) {
	if scheme == "" {
		scheme = "unknown"
	}
	m.authFailuresTotal.WithLabelValues(service, scheme).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
