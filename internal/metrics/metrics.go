// Package metrics exposes Prometheus instrumentation for evaluator calls and
// optimization runs. All operations are safe for concurrent use.
package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blackopt"

// Outcome labels for evaluator calls
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors of one registry
type Metrics struct {
	// EvaluationsTotal counts evaluator calls. Labels: outcome
	EvaluationsTotal *prometheus.CounterVec

	// EvaluationSeconds measures single evaluator calls
	EvaluationSeconds prometheus.Histogram

	// BatchSeconds measures whole batches, from dispatch to the last score
	BatchSeconds prometheus.Histogram

	// BatchSize observes the number of vectors per batch
	BatchSize prometheus.Histogram

	// RunsTotal counts finished runs. Labels: method, termination
	RunsTotal *prometheus.CounterVec

	// ActiveRuns is the number of runs in progress
	ActiveRuns prometheus.Gauge

	// BestScore is the best score of the last finished run. Labels: method
	BestScore *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		EvaluationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "calls_total",
			Help:      "Evaluator invocations by outcome.",
		}, []string{"outcome"}),
		EvaluationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "call_duration_seconds",
			Help:      "Duration of a single evaluator invocation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BatchSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "batch_duration_seconds",
			Help:      "Duration of a batch of evaluator invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "batch_size",
			Help:      "Number of vectors per batch.",
			Buckets:   []float64{1, 5, 10, 20, 40, 80, 160},
		}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "total",
			Help:      "Finished runs by method and termination reason.",
		}, []string{"method", "termination"}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "active",
			Help:      "Runs in progress.",
		}),
		BestScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "best_score",
			Help:      "Best score of the last finished run with a finite result.",
		}, []string{"method"}),
	}
}

// ObserveEvaluation records one evaluator call
func (m *Metrics) ObserveEvaluation(d time.Duration, failed bool) {
	outcome := OutcomeSuccess
	if failed {
		outcome = OutcomeFailure
	}
	m.EvaluationsTotal.WithLabelValues(outcome).Inc()
	m.EvaluationSeconds.Observe(d.Seconds())
}

// ObserveBatch records one batch
func (m *Metrics) ObserveBatch(size int, d time.Duration) {
	m.BatchSize.Observe(float64(size))
	m.BatchSeconds.Observe(d.Seconds())
}

// RunStarted marks a run as in progress
func (m *Metrics) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunFinished records the outcome of a run started with RunStarted. Sentinel
// scores leave the best score gauge untouched.
func (m *Metrics) RunFinished(method, termination string, best float64) {
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(method, termination).Inc()
	if !math.IsInf(best, 0) && !math.IsNaN(best) {
		m.BestScore.WithLabelValues(method).Set(best)
	}
}
