// Package evaluator scores parameter vectors by running an external program
// and reading a number from its standard output. Failures never escape: they
// collapse into a sentinel score.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// DefaultCallTimeout bounds a single evaluator invocation.
const DefaultCallTimeout = 30 * time.Second

// ErrEmptyCommand is returned by New for a blank command line.
var ErrEmptyCommand = errors.New("evaluator command is empty")

// Runner runs a program with arguments and returns its standard output.
// It must honor ctx cancellation.
type Runner interface {
	Run(ctx context.Context, program string, args ...string) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, program string, args ...string) (string, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, program string, args ...string) (string, error) {
	return f(ctx, program, args...)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

// Run implements Runner. A non-zero exit is an error.
func (ExecRunner) Run(ctx context.Context, program string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	return string(out), err
}

// Observer receives timing data for every call and batch.
type Observer interface {
	ObserveEvaluation(d time.Duration, failed bool)
	ObserveBatch(size int, d time.Duration)
}

// Evaluator scores vectors with an external program.
//
// Thread Safety: Safe for concurrent use.
type Evaluator struct {
	program  string
	prefix   []string
	runner   Runner
	timeout  time.Duration
	sentinel float64
	workers  int
	observer Observer
	logger   *zap.Logger
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(e *Evaluator) {
		e.runner = r
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// WithSentinel sets the score returned for failed evaluations.
func WithSentinel(score float64) Option {
	return func(e *Evaluator) {
		e.sentinel = score
	}
}

// WithWorkers caps the number of concurrent evaluator processes.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		e.workers = n
	}
}

// WithObserver reports call and batch timings to o.
func WithObserver(o Observer) Option {
	return func(e *Evaluator) {
		e.observer = o
	}
}

// WithLogger sets the logger used for failed evaluations.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// DefaultWorkers returns multiplier times the number of CPUs, at least one.
func DefaultWorkers(multiplier int) int {
	if multiplier < 1 {
		multiplier = 1
	}
	return runtime.NumCPU() * multiplier
}

// New creates an evaluator for command. The first field of command is the
// program; any further fields are passed before the vector slots.
func New(command string, opts ...Option) (*Evaluator, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}

	e := &Evaluator{
		program:  fields[0],
		prefix:   fields[1:],
		runner:   ExecRunner{},
		timeout:  DefaultCallTimeout,
		sentinel: math.Inf(-1),
		workers:  DefaultWorkers(1),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e, nil
}

// Program returns the program name.
func (e *Evaluator) Program() string {
	return e.program
}

// Workers returns the size of the worker pool.
func (e *Evaluator) Workers() int {
	return e.workers
}

// Sentinel returns the score used for failed evaluations.
func (e *Evaluator) Sentinel() float64 {
	return e.sentinel
}

// Evaluate runs the program once for v and returns its score, or the
// sentinel when the program fails, times out or prints no number.
func (e *Evaluator) Evaluate(ctx context.Context, v vector.Vector) float64 {
	start := time.Now()
	score, err := e.evaluate(ctx, v)
	if e.observer != nil {
		e.observer.ObserveEvaluation(time.Since(start), err != nil)
	}
	if err != nil {
		e.logger.Debug("evaluation failed",
			zap.String("program", e.program),
			zap.String("vector", v.String()),
			zap.Error(err),
		)
		return e.sentinel
	}
	return score
}

func (e *Evaluator) evaluate(ctx context.Context, v vector.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := make([]string, 0, len(e.prefix)+len(v))
	args = append(args, e.prefix...)
	args = append(args, v.Args()...)

	out, err := e.runner.Run(ctx, e.program, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return 0, err
	}
	return ParseScore(out)
}

// ParseScore reads a score from evaluator output. Only the last non-empty
// line is considered; if it contains a colon the text after the last colon
// is parsed, otherwise the whole line.
func ParseScore(out string) (float64, error) {
	text := strings.TrimSpace(out)
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[i+1:])
	}
	if i := strings.LastIndexByte(text, ':'); i >= 0 {
		text = strings.TrimSpace(text[i+1:])
	}
	if text == "" {
		return 0, errors.New("evaluator printed no score")
	}

	score, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", text, err)
	}
	if math.IsNaN(score) {
		return 0, fmt.Errorf("parse score %q: not a number", text)
	}
	return score, nil
}
