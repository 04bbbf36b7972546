package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestInFlight prometheus.Gauge
	keywordsTotal  *prometheus.HistogramVec
	queueLag       *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec
	republished    *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "ingestion_total",
			Help:      "Total ingested CVs by outcome.",
		},
		[]string{"service", "status"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "ingestion_duration_seconds",
			Help:      "CV ingestion duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	ingestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "ingestion_in_flight",
			Help:      "Number of in-flight ingestion tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	keywordsTotal := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "keywords_per_cv",
			Help:      "Distribution of extracted keywords per processed CV.",
			Buckets:   []float64{0, 5, 10, 25, 50, 100, 150, 200},
		},
		[]string{"service"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between upload and catalog update.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "retries_total",
			Help:      "Retried attempts by operation.",
		},
		[]string{"service", "operation"},
	)
	republished := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "republished_total",
			Help:      "Upload events re-sent for records left pending.",
		},
		[]string{"service"},
	)

	registry.MustRegister(ingestTotal, ingestDuration, ingestInFlight, keywordsTotal, queueLag, retriesTotal, republished)

	return &WorkerMetrics{
		registry:       registry,
		ingestTotal:    ingestTotal,
		ingestDuration: ingestDuration,
		ingestInFlight: ingestInFlight,
		keywordsTotal:  keywordsTotal,
		queueLag:       queueLag,
		retriesTotal:   retriesTotal,
		republished:    republished,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartIngestion() {
	m.ingestInFlight.Inc()
}

func (m *WorkerMetrics) FinishIngestion(service string, duration time.Duration, err error) {
	m.ingestInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.ingestTotal.WithLabelValues(service, status).Inc()
	m.ingestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveKeywords(service string, count int) {
	m.keywordsTotal.WithLabelValues(service).Observe(float64(count))
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveRetry(service, operation string) {
	m.retriesTotal.WithLabelValues(service, operation).Inc()
}

func (m *WorkerMetrics) ObserveRepublished(service string, count int) {
	if count <= 0 {
		return
	}
	m.republished.WithLabelValues(service).Add(float64(count))
}
