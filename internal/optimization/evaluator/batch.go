package evaluator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// task is one queued evaluation and the position its score goes to.
type task struct {
	index  int
	vector vector.Vector
}

// Batch scores every vector and returns the scores in input order. The
// vectors are queued up front and drained by a fixed set of workers, never
// more than the pool size or the number of vectors. Batch blocks until every
// vector has a score; failed evaluations carry the sentinel.
func (e *Evaluator) Batch(ctx context.Context, vs []vector.Vector) []float64 {
	scores := make([]float64, len(vs))
	if len(vs) == 0 {
		return scores
	}
	start := time.Now()

	tasks := make(chan task, len(vs))
	for i, v := range vs {
		tasks <- task{index: i, vector: v}
	}
	close(tasks)

	workers := min(e.workers, len(vs))

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for t := range tasks {
				scores[t.index] = e.Evaluate(ctx, t.vector)
			}
			return nil
		})
	}
	// Workers never return errors; failures are already sentinel scores.
	_ = g.Wait()

	if e.observer != nil {
		e.observer.ObserveBatch(len(vs), time.Since(start))
	}
	return scores
}
