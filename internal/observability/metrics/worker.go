package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the notification relay process.
type WorkerMetrics struct {
	registry *prometheus.Registry

	relayTotal    *prometheus.CounterVec
	relayDuration *prometheus.HistogramVec
	relayInFlight prometheus.Gauge
	eventLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	relayTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Relayed events by type and status.",
		},
		[]string{"service", "event_type", "status"},
	)
	relayDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "relay",
			Name:      "delivery_duration_seconds",
			Help:      "Webhook delivery duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	relayInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "relay",
			Name:      "in_flight",
			Help:      "Number of in-flight webhook deliveries.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "relay",
			Name:      "event_lag_seconds",
			Help:      "Delay between event emission and relay start.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	registry.MustRegister(relayTotal, relayDuration, relayInFlight, eventLag)

	return &WorkerMetrics{
		registry:      registry,
		relayTotal:    relayTotal,
		relayDuration: relayDuration,
		relayInFlight: relayInFlight,
		eventLag:      eventLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDelivery() {
	m.relayInFlight.Inc()
}

func (m *WorkerMetrics) FinishDelivery(service, eventType string, duration time.Duration, err error) {
	m.relayInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.relayTotal.WithLabelValues(service, eventType, status).Inc()
	m.relayDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEventLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(service).Observe(lag.Seconds())
}
