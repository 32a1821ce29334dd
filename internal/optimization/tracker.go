package optimization

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// Tracker holds the run-wide state shared by the phases of a run: the global
// best, the evaluation count, the wall-clock budget and the progress history.
// It is owned by the controlling goroutine and needs no locking.
type Tracker struct {
	direction   Direction
	timeout     time.Duration
	clock       func() time.Time
	start       time.Time
	logger      Logger
	onProgress  func(Progress)
	best        Solution
	evaluations int
	history     []Progress
}

// NewTracker starts the clock for a run configured by cfg. The global best
// starts at the worst score for the direction.
func NewTracker(cfg Config) *Tracker {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		direction:  cfg.Direction,
		timeout:    cfg.Timeout,
		clock:      clock,
		start:      clock(),
		logger:     cfg.Logger,
		onProgress: cfg.OnProgress,
		best:       Solution{Score: cfg.Direction.Worst()},
	}
}

// Direction returns the direction of the run
func (t *Tracker) Direction() Direction {
	return t.direction
}

// Elapsed returns the time since the run started
func (t *Tracker) Elapsed() time.Duration {
	return t.clock().Sub(t.start)
}

// Expired reports whether the wall-clock budget is used up
func (t *Tracker) Expired() bool {
	if t.timeout < 0 {
		return false
	}
	return t.Elapsed() >= t.timeout
}

// Checkpoint is called before every generation or iteration. It returns
// Cancelled or Deadline when the loop must stop, and an empty Termination
// otherwise.
func (t *Tracker) Checkpoint(ctx context.Context) Termination {
	if ctx.Err() != nil {
		return Cancelled
	}
	if t.Expired() {
		return Deadline
	}
	return ""
}

// Interrupted reports whether ctx has ended. Scores computed under an ended
// context may be cancellation sentinels and must not reach any best.
func (t *Tracker) Interrupted(ctx context.Context) bool {
	return ctx.Err() != nil
}

// Count adds n evaluations to the total
func (t *Tracker) Count(n int) {
	t.evaluations += n
}

// Evaluations returns the number of evaluations so far
func (t *Tracker) Evaluations() int {
	return t.evaluations
}

// Baseline records the score of the initial vector as the global best,
// whatever its value. A score computed after ctx ended is replaced by the
// worst score for the direction.
func (t *Tracker) Baseline(ctx context.Context, v vector.Vector, score float64) {
	if t.Interrupted(ctx) {
		score = t.direction.Worst()
	}
	t.best = Solution{Vector: v.Clone(), Score: score}
}

// Offer replaces the global best when score improves on it and reports
// whether it did.
func (t *Tracker) Offer(v vector.Vector, score float64) bool {
	if !t.direction.Better(score, t.best.Score) {
		return false
	}
	t.best = Solution{Vector: v.Clone(), Score: score}
	return true
}

// Best returns a copy of the global best
func (t *Tracker) Best() Solution {
	return Solution{Vector: t.best.Vector.Clone(), Score: t.best.Score}
}

// BestVector returns the global best vector without copying. Callers must not
// modify it.
func (t *Tracker) BestVector() vector.Vector {
	return t.best.Vector
}

// BestScore returns the global best score
func (t *Tracker) BestScore() float64 {
	return t.best.Score
}

// Improved logs a new global best
func (t *Tracker) Improved(phase string, iteration int) {
	t.info("New best score", map[string]interface{}{
		"phase":     phase,
		"iteration": iteration,
		"score":     t.best.Score,
	})
}

// Record appends a progress entry for a finished generation or iteration and
// logs the spread of the scores it produced.
func (t *Tracker) Record(phase string, iteration, total int, scores []float64) {
	p := Progress{
		Phase:       phase,
		Iteration:   iteration,
		Total:       total,
		BestScore:   t.best.Score,
		Evaluations: t.evaluations,
		Elapsed:     t.Elapsed(),
	}
	t.history = append(t.history, p)

	if t.logger != nil {
		mean, std, failed := summarize(scores)
		fields := map[string]interface{}{
			"phase":       phase,
			"iteration":   iteration,
			"total":       total,
			"evaluations": t.evaluations,
			"failed":      failed,
		}
		if failed < len(scores) {
			fields["mean"] = mean
			fields["stddev"] = std
		}
		t.logger.Debug("Iteration finished", fields)
	}

	if t.onProgress != nil {
		t.onProgress(p)
	}
}

// Stop logs why a phase ended early
func (t *Tracker) Stop(phase string, reason Termination) {
	if t.logger != nil && reason != Completed {
		t.logger.Warn("Search stopped", map[string]interface{}{
			"phase":  phase,
			"reason": string(reason),
		})
	}
}

// Result builds the outcome of the run
func (t *Tracker) Result(method string, final vector.Vector, term Termination) *Result {
	return &Result{
		Method:      method,
		Final:       final.Clone(),
		Best:        t.Best(),
		Evaluations: t.evaluations,
		Elapsed:     t.Elapsed(),
		Termination: term,
		History:     append([]Progress(nil), t.history...),
	}
}

func (t *Tracker) info(msg string, fields map[string]interface{}) {
	if t.logger == nil {
		return
	}
	if math.IsInf(t.best.Score, 0) {
		fields["score"] = formatInf(t.best.Score)
	}
	t.logger.Info(msg, fields)
}

// summarize returns the mean and standard deviation of the finite scores and
// the number of scores left out.
func summarize(scores []float64) (mean, std float64, skipped int) {
	finite := make([]float64, 0, len(scores))
	for _, s := range scores {
		if math.IsInf(s, 0) || math.IsNaN(s) {
			skipped++
			continue
		}
		finite = append(finite, s)
	}
	if len(finite) == 0 {
		return 0, 0, skipped
	}
	if len(finite) == 1 {
		return finite[0], 0, skipped
	}
	mean, std = stat.MeanStdDev(finite, nil)
	return mean, std, skipped
}

func formatInf(f float64) string {
	if f > 0 {
		return "+Inf"
	}
	return "-Inf"
}
