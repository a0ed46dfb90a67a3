package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

// HTTPServerMetrics covers the API process: request metrics plus the intake
// engine observations (it implements ports.IntakeMetrics).
type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	savesTotal         *prometheus.CounterVec
	saveDuration       prometheus.Histogram
	uploadsTotal       *prometheus.CounterVec
	uploadedFilesTotal *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	openSessions       prometheus.GaugeFunc
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	savesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "dossier",
			Name:      "saves_total",
			Help:      "Dossier saves by result.",
		},
		[]string{"service", "result"},
	)
	saveDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "intake",
			Subsystem:   "dossier",
			Name:        "save_duration_seconds",
			Help:        "Duration of one dossier save cycle.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "documents",
			Name:      "upload_batches_total",
			Help:      "Upload batches by document type and result.",
		},
		[]string{"service", "document_type", "result"},
	)
	uploadedFilesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "documents",
			Name:      "files_stored_total",
			Help:      "Evidence files stored, including the prefix of failed batches.",
		},
		[]string{"service", "document_type"},
	)
	notificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by event type, notifier and result.",
		},
		[]string{"service", "event_type", "notifier", "result"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		savesTotal,
		saveDuration,
		uploadsTotal,
		uploadedFilesTotal,
		notificationsTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		service:            service,
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		savesTotal:         savesTotal,
		saveDuration:       saveDuration,
		uploadsTotal:       uploadsTotal,
		uploadedFilesTotal: uploadedFilesTotal,
		notificationsTotal: notificationsTotal,
		breakerState:       breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackOpenSessions exports the number of live dossier sessions.
func (m *HTTPServerMetrics) TrackOpenSessions(count func() int) {
	if m.openSessions != nil {
		return
	}
	m.openSessions = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "intake",
			Subsystem:   "dossier",
			Name:        "open_sessions",
			Help:        "Dossier sessions held in memory.",
			ConstLabels: prometheus.Labels{"service": m.service},
		},
		func() float64 { return float64(count()) },
	)
	m.registry.MustRegister(m.openSessions)
}

// Middleware labels requests by their chi route pattern so ids do not
// explode label cardinality.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := routePattern(r)
		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func (m *HTTPServerMetrics) ObserveSave(duration time.Duration, err error) {
	m.savesTotal.WithLabelValues(m.service, result(err)).Inc()
	m.saveDuration.Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveUpload(documentType string, files int, err error) {
	m.uploadsTotal.WithLabelValues(m.service, documentType, result(err)).Inc()
	if files > 0 {
		m.uploadedFilesTotal.WithLabelValues(m.service, documentType).Add(float64(files))
	}
}

func (m *HTTPServerMetrics) ObserveNotification(eventType domain.EventType, notifier string, err error) {
	m.notificationsTotal.WithLabelValues(m.service, string(eventType), notifier, result(err)).Inc()
}

// ObserveBreakerState fits resilience.Config.StateObserver.
func (m *HTTPServerMetrics) ObserveBreakerState(operation, state string) {
	open := 0.0
	if state != "closed" {
		open = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(open)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
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
