package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueonelabs/dealer-rag/internal/infrastructure/resilience"
)

// RetrievalMetrics exposes pipeline outcomes and circuit breaker bookkeeping.
// It implements resilience.Observer so every breaker call outcome and state
// transition lands in the registry.
type RetrievalMetrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	candidatesReturned prometheus.Histogram

	breakerCalls       *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
}

func NewRetrievalMetrics(service string) *RetrievalMetrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "drg",
			Subsystem:   "retrieval",
			Name:        "requests_total",
			Help:        "Retrieval requests by outcome (ok, degraded, failed, invalid).",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "drg",
			Subsystem:   "retrieval",
			Name:        "request_duration_seconds",
			Help:        "End-to-end retrieval pipeline duration by outcome.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"outcome"},
	)
	candidatesReturned := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "drg",
			Subsystem:   "retrieval",
			Name:        "candidates_returned",
			Help:        "Final candidate count per retrieval request.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	breakerCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "drg",
			Subsystem:   "breaker",
			Name:        "calls_total",
			Help:        "Calls recorded per circuit breaker by result.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"breaker", "result"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   "drg",
			Subsystem:   "breaker",
			Name:        "state",
			Help:        "Current circuit breaker state (0=closed, 1=open, 2=half_open).",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"breaker"},
	)
	breakerTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "drg",
			Subsystem:   "breaker",
			Name:        "transitions_total",
			Help:        "Circuit breaker state transitions.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"breaker", "from", "to"},
	)

	registry.MustRegister(
		requestsTotal, requestDuration, candidatesReturned,
		breakerCalls, breakerState, breakerTransitions,
	)

	return &RetrievalMetrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		requestDuration:    requestDuration,
		candidatesReturned: candidatesReturned,
		breakerCalls:       breakerCalls,
		breakerState:       breakerState,
		breakerTransitions: breakerTransitions,
	}
}

func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RetrievalMetrics) ObserveRequest(outcome string, duration time.Duration, candidates int) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if candidates >= 0 {
		m.candidatesReturned.Observe(float64(candidates))
	}
}

func (m *RetrievalMetrics) BreakerCall(name string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.breakerCalls.WithLabelValues(name, result).Inc()
}

func (m *RetrievalMetrics) BreakerStateChange(name string, from, to resilience.State) {
	m.breakerState.WithLabelValues(name).Set(float64(to))
	m.breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}
