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

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal     *prometheus.CounterVec
	retrievalNoHits    *prometheus.CounterVec
	retrievalHits      *prometheus.HistogramVec
	retrievalDuration  *prometheus.HistogramVec
	cacheLookupsTotal  *prometheus.CounterVec
	cacheSimilarity    *prometheus.HistogramVec
	generationTotal    *prometheus.CounterVec
	generationAttempts *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total successful retrievals by search strategy.",
		},
		[]string{"service", "endpoint", "strategy"},
	)
	retrievalNoHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "retrieval",
			Name:      "no_hits_total",
			Help:      "Total retrievals that returned no documents.",
		},
		[]string{"service", "endpoint", "strategy"},
	)
	retrievalHits := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "retrieval",
			Name:      "hits",
			Help:      "Distribution of normalized hits per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5},
		},
		[]string{"service", "endpoint"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End to end duration of search and ask requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint", "strategy"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "semantic_cache",
			Name:      "lookups_total",
			Help:      "Semantic cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	cacheSimilarity := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "semantic_cache",
			Name:      "similarity",
			Help:      "Similarity of the nearest cached query on cache hits.",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1},
		},
		[]string{"service"},
	)
	generationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "generation",
			Name:      "outcomes_total",
			Help:      "Generation outcomes by final state and failure category.",
		},
		[]string{"service", "state", "failure"},
	)
	generationAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "generation",
			Name:      "attempts",
			Help:      "Completion calls per generation.",
			Buckets:   []float64{1, 2, 3},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalNoHits,
		retrievalHits,
		retrievalDuration,
		cacheLookupsTotal,
		cacheSimilarity,
		generationTotal,
		generationAttempts,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		retrievalTotal:     retrievalTotal,
		retrievalNoHits:    retrievalNoHits,
		retrievalHits:      retrievalHits,
		retrievalDuration:  retrievalDuration,
		cacheLookupsTotal:  cacheLookupsTotal,
		cacheSimilarity:    cacheSimilarity,
		generationTotal:    generationTotal,
		generationAttempts: generationAttempts,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
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

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sessions/"):
		return "/v1/sessions/{session_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRetrieval(service, endpoint, strategy string, hitCount int, duration time.Duration) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.retrievalTotal.WithLabelValues(service, endpoint, strategy).Inc()
	m.retrievalHits.WithLabelValues(service, endpoint).Observe(float64(hitCount))
	m.retrievalDuration.WithLabelValues(service, endpoint, strategy).Observe(duration.Seconds())
	if hitCount == 0 {
		m.retrievalNoHits.WithLabelValues(service, endpoint, strategy).Inc()
	}
}

// RecordCacheLookup counts one lookup; result is hit, miss or disabled.
func (m *HTTPServerMetrics) RecordCacheLookup(service, result string, similarity float64) {
	if result == "" {
		result = "unknown"
	}
	m.cacheLookupsTotal.WithLabelValues(service, result).Inc()
	if result == "hit" {
		m.cacheSimilarity.WithLabelValues(service).Observe(similarity)
	}
}

func (m *HTTPServerMetrics) RecordGeneration(service, state, failure string, attempts int) {
	if state == "" {
		state = "unknown"
	}
	m.generationTotal.WithLabelValues(service, state, failure).Inc()
	if attempts > 0 {
		m.generationAttempts.WithLabelValues(service).Observe(float64(attempts))
	}
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
