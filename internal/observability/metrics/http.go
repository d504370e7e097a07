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

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

const namespace = "orchestrator"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	envelopesTotal       *prometheus.CounterVec
	plannerDecisionTotal *prometheus.CounterVec
	bridgeCallsTotal     *prometheus.CounterVec
	pendingEventsTotal   *prometheus.CounterVec
	memoryWindow         *prometheus.HistogramVec
	responderRounds      *prometheus.HistogramVec
	draftReviewsTotal    *prometheus.CounterVec
	retriesTotal         *prometheus.CounterVec
	breakerState         *prometheus.GaugeVec
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
	envelopesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "turn",
			Name:      "envelopes_total",
			Help:      "Response envelopes by route and type.",
		},
		[]string{"service", "route", "type"},
	)
	plannerDecisionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "decisions_total",
			Help:      "Planner decisions by kind.",
		},
		[]string{"service", "kind"},
	)
	bridgeCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "calls_total",
			Help:      "Tool bridge invocations by tool and outcome.",
		},
		[]string{"service", "tool", "outcome"},
	)
	pendingEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pending",
			Name:      "events_total",
			Help:      "Pending interaction lifecycle events.",
		},
		[]string{"service", "event"},
	)
	memoryWindow := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "window_turns",
			Help:      "Memory turns injected per message.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
		[]string{"service"},
	)
	responderRounds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "responder",
			Name:      "rounds",
			Help:      "Responder rounds per message.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6},
		},
		[]string{"service"},
	)
	draftReviewsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drafts",
			Name:      "reviews_total",
			Help:      "Draft review decisions by action type.",
		},
		[]string{"service", "decision", "action_type"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Collaborator call retries by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		envelopesTotal,
		plannerDecisionTotal,
		bridgeCallsTotal,
		pendingEventsTotal,
		memoryWindow,
		responderRounds,
		draftReviewsTotal,
		retriesTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		service:              service,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		envelopesTotal:       envelopesTotal,
		plannerDecisionTotal: plannerDecisionTotal,
		bridgeCallsTotal:     bridgeCallsTotal,
		pendingEventsTotal:   pendingEventsTotal,
		memoryWindow:         memoryWindow,
		responderRounds:      responderRounds,
		draftReviewsTotal:    draftReviewsTotal,
		retriesTotal:         retriesTotal,
		breakerState:         breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
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
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses ids so label cardinality stays bounded.
func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return path
	}
	switch parts[1] {
	case "conversations":
		parts[2] = "{conversation_id}"
	case "drafts":
		if parts[2] != "export" {
			parts[2] = "{draft_id}"
		}
	default:
		return path
	}
	return "/" + strings.Join(parts, "/")
}

// RecordTurn records what happened while producing one envelope.
func (m *HTTPServerMetrics) RecordTurn(result *domain.TurnResult) {
	if result == nil {
		return
	}
	route := result.Route
	if route == "" {
		route = "unknown"
	}
	m.envelopesTotal.WithLabelValues(m.service, route, string(result.Envelope.Type)).Inc()
	if result.PlannerKind != "" {
		m.plannerDecisionTotal.WithLabelValues(m.service, string(result.PlannerKind)).Inc()
	}
	for _, call := range result.BridgeCalls {
		tool := call.Tool
		if tool == "" {
			tool = "unknown"
		}
		m.bridgeCallsTotal.WithLabelValues(m.service, tool, string(call.Outcome)).Inc()
	}
	if result.PendingEvent != "" {
		m.pendingEventsTotal.WithLabelValues(m.service, result.PendingEvent).Inc()
	}
	m.memoryWindow.WithLabelValues(m.service).Observe(float64(result.MemoryWindow))
	m.responderRounds.WithLabelValues(m.service).Observe(float64(result.ResponderUsed))
}

func (m *HTTPServerMetrics) RecordDraftReview(decision string, actionType domain.ActionType) {
	m.draftReviewsTotal.WithLabelValues(m.service, decision, string(actionType)).Inc()
}

func (m *HTTPServerMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *HTTPServerMetrics) ObserveBreakerState(operation, state string) {
	value := 1.0
	if state == "closed" {
		value = 0
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
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
