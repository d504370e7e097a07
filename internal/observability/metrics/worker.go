package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments the approved-draft conversion worker.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	conversionTotal    *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	conversionInFlight prometheus.Gauge
	eventLag           *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	conversionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "draft_conversion_total",
			Help:      "Approved drafts handed to the converter, by status.",
		},
		[]string{"service", "status"},
	)
	conversionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "draft_conversion_duration_seconds",
			Help:      "Draft conversion duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	conversionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "draft_conversion_in_flight",
			Help:      "Number of in-flight draft conversions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between draft approval and conversion start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "retries_total",
			Help:      "Collaborator call retries by operation.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(conversionTotal, conversionDuration, conversionInFlight, eventLag, retriesTotal)

	return &WorkerMetrics{
		registry:           registry,
		service:            service,
		conversionTotal:    conversionTotal,
		conversionDuration: conversionDuration,
		conversionInFlight: conversionInFlight,
		eventLag:           eventLag,
		retriesTotal:       retriesTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartConversion() {
	m.conversionInFlight.Inc()
}

func (m *WorkerMetrics) FinishConversion(duration time.Duration, err error) {
	m.conversionInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.conversionTotal.WithLabelValues(m.service, status).Inc()
	m.conversionDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEventLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *WorkerMetrics) ObserveBreakerState(string, string) {}
