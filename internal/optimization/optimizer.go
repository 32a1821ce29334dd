package optimization

import (
	"context"
	"math/rand"
	"time"

	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// DefaultTimeout is the wall-clock budget of a single run.
const DefaultTimeout = 1200 * time.Second

// Optimizer defines the interface for the search strategies
type Optimizer interface {
	// Name returns the method name used in run reports
	Name() string

	// Optimize searches starting from the initial vector and returns the
	// outcome of the run
	Optimize(ctx context.Context, initial vector.Vector) (*Result, error)
}

// Evaluator scores parameter vectors. Implementations never fail: an
// evaluation that cannot produce a score returns a sentinel.
type Evaluator interface {
	// Evaluate scores a single vector
	Evaluate(ctx context.Context, v vector.Vector) float64

	// Batch scores every vector and returns the scores in input order
	Batch(ctx context.Context, vs []vector.Vector) []float64
}

// Logger is the logging surface the engines write to
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
}

// Config contains the settings shared by every engine
type Config struct {
	// Evaluator scores candidate vectors
	Evaluator Evaluator

	// Bounds shared by every Integer and Real slot
	Bounds Bounds

	// Direction of optimization
	Direction Direction

	// Timeout is the wall-clock budget, checked before every generation or
	// iteration. Zero stops at the first check, a negative value disables it.
	Timeout time.Duration

	// RandomSeed seeds the engine's generator when Rand is nil. Zero picks a
	// time based seed.
	RandomSeed int64

	// Rand, when set, is used as is
	Rand *rand.Rand

	// Logger receives progress messages. Nil discards them.
	Logger Logger

	// OnProgress is called once per generation or iteration
	OnProgress func(Progress)

	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time
}

// NewRand returns the generator configured in c
func (c Config) NewRand() *rand.Rand {
	if c.Rand != nil {
		return c.Rand
	}
	if c.RandomSeed == 0 {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(c.RandomSeed))
}

// Validate checks the settings every engine depends on
func (c Config) Validate(component string, initial vector.Vector) error {
	if c.Evaluator == nil {
		return NewError("evaluator is required").WithComponent(component).WithOperation("validate")
	}
	if err := c.Bounds.Validate(initial.Kinds()); err != nil {
		return WrapError(err, "invalid bounds").WithComponent(component).WithOperation("validate")
	}
	return nil
}

// Solution is a parameter vector together with its score
type Solution struct {
	Vector vector.Vector
	Score  float64
}

// Termination tells why a run stopped
type Termination string

const (
	// Completed means the generation or iteration cap was reached
	Completed Termination = "completed"
	// Deadline means the wall-clock budget ran out
	Deadline Termination = "deadline"
	// Cancelled means the context was cancelled
	Cancelled Termination = "cancelled"
)

// Progress is recorded after every generation or iteration
type Progress struct {
	Phase       string
	Iteration   int
	Total       int
	BestScore   float64
	Evaluations int
	Elapsed     time.Duration
}

// Result contains the outcome of a run
type Result struct {
	// Method is the engine name
	Method string

	// Final is the configuration the engine returns. For the genetic engine
	// this is the elite of the last generation, which may differ from Best.
	Final vector.Vector

	// Best is the global best vector and score
	Best Solution

	Evaluations int
	Elapsed     time.Duration
	Termination Termination
	History     []Progress
}
