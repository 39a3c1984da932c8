package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal     *prometheus.CounterVec
	answerLatency   *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "worker",
			Name:      "answer_events_total",
			Help:      "Answered turns consumed by answer source and strategy.",
		},
		[]string{"service", "source", "strategy"},
	)
	answerLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "worker",
			Name:      "answer_latency_seconds",
			Help:      "Latency of answered turns as reported by the api.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "source"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msa",
			Subsystem: "worker",
			Name:      "answer_events_in_flight",
			Help:      "Number of answer events being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between answering a turn and consuming its event.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	registry.MustRegister(eventsTotal, answerLatency, processInFlight, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		eventsTotal:     eventsTotal,
		answerLatency:   answerLatency,
		processInFlight: processInFlight,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) StartEvent() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(service, source, strategy string, latency time.Duration) {
	m.processInFlight.Dec()
	if source == "" {
		source = "unknown"
	}
	if strategy == "" {
		strategy = "unknown"
	}
	m.eventsTotal.WithLabelValues(service, source, strategy).Inc()
	if latency > 0 {
		m.answerLatency.WithLabelValues(service, source).Observe(latency.Seconds())
	}
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
