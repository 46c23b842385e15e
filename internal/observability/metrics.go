package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/studygen/services/generation"
)

const namespace = "studygen"

// Metrics records generation attempts and runs on a private registry.
// It implements generation.Recorder.
type Metrics struct {
	registry        *prometheus.Registry
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	runAttempts     prometheus.Histogram
}

var _ generation.Recorder = (*Metrics)(nil)

// NewMetrics creates and registers the generation collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "attempts_total",
			Help:      "Provider calls by provider, purpose, outcome and fault.",
		}, []string{"provider", "purpose", "outcome", "fault"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "attempt_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 90},
		}, []string{"provider", "purpose"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "runs_total",
			Help:      "Generation requests by result kind.",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "run_duration_seconds",
			Help:      "End-to-end generation latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 90, 120},
		}),
		runAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "run_attempts",
			Help:      "Provider calls made per generation request.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		}),
	}

	m.registry.MustRegister(m.attempts, m.attemptDuration, m.runs, m.runDuration, m.runAttempts)
	return m
}

// ObserveAttempt records one provider call
func (m *Metrics) ObserveAttempt(provider string, purpose generation.Purpose, outcome generation.Outcome, fault generation.Fault, duration time.Duration) {
	faultLabel := string(fault)
	if faultLabel == "" {
		faultLabel = "none"
	}
	m.attempts.WithLabelValues(provider, string(purpose), string(outcome), faultLabel).Inc()
	m.attemptDuration.WithLabelValues(provider, string(purpose)).Observe(duration.Seconds())
}

// ObserveRun records one finished generation request
func (m *Metrics) ObserveRun(kind string, attempts int, duration time.Duration) {
	m.runs.WithLabelValues(kind).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.runAttempts.Observe(float64(attempts))
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
