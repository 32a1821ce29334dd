package optimization

import (
	"context"
	"sync"
	"testing"

	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// ConstantEvaluator scores every vector with the same value
type ConstantEvaluator struct {
	Score float64

	mu      sync.Mutex
	calls   int
	batches int
}

// Evaluate implements Evaluator
func (c *ConstantEvaluator) Evaluate(_ context.Context, _ vector.Vector) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.Score
}

// Batch implements Evaluator
func (c *ConstantEvaluator) Batch(_ context.Context, vs []vector.Vector) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls += len(vs)
	c.batches++
	scores := make([]float64, len(vs))
	for i := range scores {
		scores[i] = c.Score
	}
	return scores
}

// Calls returns the number of vectors scored
func (c *ConstantEvaluator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Batches returns the number of Batch calls
func (c *ConstantEvaluator) Batches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

// RecordingEvaluator scores with Objective and keeps every vector it was
// asked to score
type RecordingEvaluator struct {
	Objective func(vector.Vector) float64

	mu   sync.Mutex
	seen []vector.Vector
}

// Evaluate implements Evaluator
func (r *RecordingEvaluator) Evaluate(_ context.Context, v vector.Vector) float64 {
	r.mu.Lock()
	r.seen = append(r.seen, v.Clone())
	r.mu.Unlock()
	return r.Objective(v)
}

// Batch implements Evaluator
func (r *RecordingEvaluator) Batch(ctx context.Context, vs []vector.Vector) []float64 {
	scores := make([]float64, len(vs))
	for i, v := range vs {
		scores[i] = r.Evaluate(ctx, v)
	}
	return scores
}

// Seen returns copies of every vector scored so far
func (r *RecordingEvaluator) Seen() []vector.Vector {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]vector.Vector, len(r.seen))
	for i, v := range r.seen {
		out[i] = v.Clone()
	}
	return out
}

// CancellingEvaluator scores Score until its After-th call, where it calls
// Cancel. Once ctx is done every call returns Sentinel, as the process
// evaluator does.
type CancellingEvaluator struct {
	Score    float64
	Sentinel float64
	After    int
	Cancel   context.CancelFunc

	mu    sync.Mutex
	calls int
}

// Evaluate implements Evaluator
func (c *CancellingEvaluator) Evaluate(ctx context.Context, _ vector.Vector) float64 {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()

	if n == c.After {
		c.Cancel()
	}
	if ctx.Err() != nil {
		return c.Sentinel
	}
	return c.Score
}

// Batch implements Evaluator
func (c *CancellingEvaluator) Batch(ctx context.Context, vs []vector.Vector) []float64 {
	scores := make([]float64, len(vs))
	for i, v := range vs {
		scores[i] = c.Evaluate(ctx, v)
	}
	return scores
}

// Calls returns the number of vectors scored
func (c *CancellingEvaluator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// SumObjective adds up the numeric slots of v
func SumObjective(v vector.Vector) float64 {
	sum := 0.0
	for _, s := range v {
		if s.Numeric() {
			sum += s.Value
		}
	}
	return sum
}

// AssertWithinBounds fails the test if any vector leaves the box or changes a
// Fixed slot of reference
func AssertWithinBounds(t testing.TB, b Bounds, reference vector.Vector, vs ...vector.Vector) {
	t.Helper()

	for i, v := range vs {
		if !b.Contains(v, reference) {
			t.Fatalf("vector %d (%s) violates bounds [%v, %v] or fixed slots of %s", i, v, b.Min, b.Max, reference)
		}
	}
}

// AssertMonotonic fails the test if the best score in history ever gets worse
func AssertMonotonic(t testing.TB, d Direction, history []Progress) {
	t.Helper()

	for i := 1; i < len(history); i++ {
		if d.Better(history[i-1].BestScore, history[i].BestScore) {
			t.Fatalf("best score regressed at entry %d: %v -> %v", i, history[i-1].BestScore, history[i].BestScore)
		}
	}
}
