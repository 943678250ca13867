package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

// Metrics owns a private registry covering the HTTP surface and the
// answer pipeline. It satisfies the pipeline observer contract of the
// usecase layer.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	chatRequestsTotal  *prometheus.CounterVec
	phaseDuration      *prometheus.HistogramVec
	parseStageTotal    *prometheus.CounterVec
	rerankFallbacks    prometheus.Counter
	persistenceTotal   *prometheus.CounterVec
	tokensUsedTotal    prometheus.Counter
	citedSourcesPerAsk prometheus.Histogram
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nestor",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nestor",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	chatRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestor",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total chat requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	phaseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nestor",
			Subsystem: "chat",
			Name:      "phase_duration_seconds",
			Help:      "Pipeline phase duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "phase"},
	)
	parseStageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestor",
			Subsystem: "chat",
			Name:      "parse_stage_total",
			Help:      "Model output parses by the stage that succeeded.",
		},
		[]string{"service", "stage"},
	)
	rerankFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nestor",
			Subsystem: "chat",
			Name:      "rerank_fallback_total",
			Help:      "Rerank failures answered with vector order instead.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	persistenceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestor",
			Subsystem: "persist",
			Name:      "writes_total",
			Help:      "Best-effort persistence writes by sink and status.",
		},
		[]string{"service", "sink", "status"},
	)
	tokensUsedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nestor",
			Subsystem: "chat",
			Name:      "tokens_used_total",
			Help:      "Total LLM tokens consumed by answered requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	citedSourcesPerAsk := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nestor",
			Subsystem: "chat",
			Name:      "cited_sources",
			Help:      "Distribution of cited sources per answered request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		chatRequestsTotal,
		phaseDuration,
		parseStageTotal,
		rerankFallbacks,
		persistenceTotal,
		tokensUsedTotal,
		citedSourcesPerAsk,
	)

	return &Metrics{
		registry:           registry,
		service:            service,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		chatRequestsTotal:  chatRequestsTotal,
		phaseDuration:      phaseDuration,
		parseStageTotal:    parseStageTotal,
		rerankFallbacks:    rerankFallbacks,
		persistenceTotal:   persistenceTotal,
		tokensUsedTotal:    tokensUsedTotal,
		citedSourcesPerAsk: citedSourcesPerAsk,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) RecordChatOutcome(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.chatRequestsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *Metrics) RecordCitedSources(count int) {
	m.citedSourcesPerAsk.Observe(float64(count))
}

func (m *Metrics) RerankFallback() {
	m.rerankFallbacks.Inc()
}

// Pipeline observer contract.

func (m *Metrics) ParseStage(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.parseStageTotal.WithLabelValues(m.service, stage).Inc()
}

func (m *Metrics) PersistOutcome(sink string, status domain.SinkStatus) {
	m.persistenceTotal.WithLabelValues(m.service, sink, string(status)).Inc()
}

func (m *Metrics) PhaseDuration(phase string, d time.Duration) {
	m.phaseDuration.WithLabelValues(m.service, phase).Observe(d.Seconds())
}

func (m *Metrics) TokensUsed(n int) {
	if n > 0 {
		m.tokensUsedTotal.Add(float64(n))
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
