package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/blackopt/internal/optimization/evaluator"
)

var _ evaluator.Observer = (*Metrics)(nil)

func TestObserveEvaluation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveEvaluation(10*time.Millisecond, false)
	m.ObserveEvaluation(20*time.Millisecond, false)
	m.ObserveEvaluation(30*time.Second, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EvaluationSeconds))
}

func TestObserveBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveBatch(40, 2*time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "blackopt_evaluator_batch_size" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			assert.Equal(t, uint64(1), h.GetSampleCount())
			assert.Equal(t, 40.0, h.GetSampleSum())
		}
	}
	assert.True(t, found)
}

func TestRunLifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RunStarted()
	m.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveRuns))

	m.RunFinished("Particle Swarm", "completed", 12.5)
	m.RunFinished("Particle Swarm", "deadline", math.Inf(-1))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("Particle Swarm", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("Particle Swarm", "deadline")))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.BestScore.WithLabelValues("Particle Swarm")))
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
