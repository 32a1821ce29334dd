package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTrackerBudget(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		advance time.Duration
		expired bool
	}{
		{name: "zero budget", timeout: 0, expired: true},
		{name: "within budget", timeout: time.Minute, advance: time.Second},
		{name: "at budget", timeout: time.Minute, advance: time.Minute, expired: true},
		{name: "disabled", timeout: -1, advance: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(0, 0)}
			tr := NewTracker(Config{Timeout: tt.timeout, Clock: clock.Now})
			clock.Advance(tt.advance)
			assert.Equal(t, tt.expired, tr.Expired())
			assert.Equal(t, tt.advance, tr.Elapsed())
		})
	}
}

func TestTrackerOfferKeepsBest(t *testing.T) {
	v, _ := vector.Infer("a 10")
	tr := NewTracker(Config{Direction: Minimize})
	assert.Equal(t, math.Inf(1), tr.BestScore())

	tr.Baseline(context.Background(), v, 50)
	assert.False(t, tr.Offer(v, 60))
	assert.True(t, tr.Offer(v, 40))
	assert.False(t, tr.Offer(v, 40))
	assert.Equal(t, 40.0, tr.BestScore())

	v[1].Value = 999
	assert.Equal(t, 10.0, tr.BestVector()[1].Value, "offered vectors are copied")
}

func TestTrackerBaselineAfterCancel(t *testing.T) {
	v, _ := vector.Infer("a 10")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		direction Direction
		want      float64
	}{
		{Minimize, math.Inf(1)},
		{Maximize, math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.direction.String(), func(t *testing.T) {
			tr := NewTracker(Config{Direction: tt.direction})
			assert.True(t, tr.Interrupted(ctx))
			assert.False(t, tr.Interrupted(context.Background()))

			tr.Baseline(ctx, v, math.Inf(-1))
			assert.Equal(t, tt.want, tr.BestScore())
			assert.True(t, tr.BestVector().Equal(v))
		})
	}
}

func TestTrackerRecordAndResult(t *testing.T) {
	var seen []Progress
	tr := NewTracker(Config{
		Direction:  Maximize,
		OnProgress: func(p Progress) { seen = append(seen, p) },
	})
	v, _ := vector.Infer("1 2")

	tr.Baseline(context.Background(), v, 1)
	tr.Count(3)
	tr.Record("genetic", 1, 2, []float64{1, 2, math.Inf(-1)})
	tr.Offer(v, 5)
	tr.Count(3)
	tr.Record("genetic", 2, 2, []float64{5, 5, 5})

	res := tr.Result("test", v, Completed)
	require.Len(t, res.History, 2)
	assert.Equal(t, seen, res.History)
	assert.Equal(t, 6, res.Evaluations)
	assert.Equal(t, 5.0, res.Best.Score)
	assert.Equal(t, Completed, res.Termination)
	AssertMonotonic(t, Maximize, res.History)
}

func TestSummarize(t *testing.T) {
	mean, std, skipped := summarize([]float64{2, 4, math.Inf(-1)})
	assert.Equal(t, 3.0, mean)
	assert.InDelta(t, math.Sqrt2, std, 1e-9)
	assert.Equal(t, 1, skipped)

	_, _, skipped = summarize([]float64{math.Inf(1)})
	assert.Equal(t, 1, skipped)
}

func TestError(t *testing.T) {
	base := errors.New("boom")
	err := WrapError(base, "invalid bounds").WithComponent("genetic").WithOperation("validate")

	assert.Equal(t, "genetic: validate: invalid bounds: boom", err.Error())
	assert.ErrorIs(t, err, base)

	oe, ok := IsOptimizationError(err)
	require.True(t, ok)
	assert.Equal(t, "genetic", oe.Component)

	wrapped := fmt.Errorf("run: %w", err)
	oe, ok = IsOptimizationError(wrapped)
	require.True(t, ok)
	assert.Same(t, err, oe)
	_, ok = IsOptimizationError(base)
	assert.False(t, ok)

	assert.Nil(t, WrapError(nil, "ignored"))
	assert.Equal(t, "swarm: bad", NewError("bad").WithComponent("swarm").Error())
}
