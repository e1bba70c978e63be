// Package metrics exports Prometheus metrics for diagnosis sessions.
package metrics

import (
	"net/http"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tdp"

// Metrics is a tdp.Observer that records session events.
type Metrics struct {
	reg *prometheus.Registry

	sessionsStarted prometheus.Counter
	sessions        *prometheus.CounterVec
	tests           *prometheus.CounterVec
	randomPicks     prometheus.Counter
	iterations      prometheus.Histogram
	entropy         prometheus.Histogram
	diagnoses       prometheus.Histogram
	testDuration    prometheus.Histogram
}

// New registers the session metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions started.",
		}),
		// Labels: status (converged, no_evidence, exhausted, budget_exceeded, interrupted)
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions finished by terminal status.",
		}, []string{"status"}),
		// Labels: result (pass, fail)
		tests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tests_executed_total",
			Help:      "Tests executed through the oracle by result.",
		}, []string{"result"}),
		randomPicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "random_picks_total",
			Help:      "Tests selected at random for lack of observations.",
		}),
		iterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_iterations",
			Help:      "Tests executed per session.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 15, 20, 50},
		}),
		entropy: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "final_entropy_nats",
			Help:      "Entropy of the final diagnosis distribution.",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 1, 1.5, 2, 3},
		}),
		diagnoses: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "final_diagnoses",
			Help:      "Number of diagnoses left at the end of a session.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20},
		}),
		testDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_duration_seconds",
			Help:      "Oracle execution time per test.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

// Registry returns the registry holding the session metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Emit updates the metrics for ev.
func (m *Metrics) Emit(ev tdp.Event) {
	switch ev.Type {
	case tdp.EventSessionStart:
		m.sessionsStarted.Inc()
	case tdp.EventPlan:
		if ev.Random {
			m.randomPicks.Inc()
		}
	case tdp.EventTest:
		result := "pass"
		if ev.Passed != nil && !*ev.Passed {
			result = "fail"
		}
		m.tests.WithLabelValues(result).Inc()
	case tdp.EventDone:
		if ev.Outcome == nil {
			return
		}
		out := ev.Outcome
		m.sessions.WithLabelValues(string(out.Status)).Inc()
		m.iterations.Observe(float64(out.Iterations))
		m.entropy.Observe(out.Statistics.Entropy)
		m.diagnoses.Observe(float64(len(out.Diagnoses)))
		for _, r := range out.Executed {
			m.testDuration.Observe(r.Duration.Seconds())
		}
	}
}
