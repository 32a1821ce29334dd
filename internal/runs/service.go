// Package runs wires configuration, the evaluator and an engine into one
// optimization run, then records its outcome in metrics and the report.
package runs

import (
	"context"
	"math"
	"time"

	"github.com/copyleftdev/blackopt/internal/config"
	"github.com/copyleftdev/blackopt/internal/errors"
	"github.com/copyleftdev/blackopt/internal/logging"
	"github.com/copyleftdev/blackopt/internal/metrics"
	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/optimization/evaluator"
	"github.com/copyleftdev/blackopt/internal/optimization/genetic"
	"github.com/copyleftdev/blackopt/internal/optimization/hybrid"
	"github.com/copyleftdev/blackopt/internal/optimization/swarm"
	"github.com/copyleftdev/blackopt/internal/optimization/vector"
	"github.com/copyleftdev/blackopt/internal/report"
)

const component = "runs"

// Request describes one run
type Request struct {
	Strategy Strategy

	// Command is the evaluator command line. Vector slots are appended to it.
	Command string

	// Example is the whitespace separated initial vector
	Example string

	Direction optimization.Direction

	// OnProgress, when set, is called after every generation or iteration
	OnProgress func(optimization.Progress)
}

// Outcome is what a finished run produced
type Outcome struct {
	Record report.Record
	Result *optimization.Result
}

// Service runs optimizations. It is safe for concurrent use; each run gets
// its own evaluator and engine.
type Service struct {
	cfg      *config.Config
	logger   *logging.Logger
	metrics  *metrics.Metrics
	reporter *report.Writer
	runner   evaluator.Runner
	clock    func() time.Time
}

// Option configures the Service
type Option func(*Service)

// WithMetrics records evaluator and run metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRunner replaces the process runner of every evaluator
func WithRunner(r evaluator.Runner) Option {
	return func(s *Service) {
		s.runner = r
	}
}

// WithReporter overrides the report writer built from the configuration
func WithReporter(w *report.Writer) Option {
	return func(s *Service) {
		s.reporter = w
	}
}

// WithClock sets the clock used for the wall-clock budget
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService creates a service. Reports are written when enabled in cfg.
func NewService(cfg *config.Config, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{
		cfg:    cfg,
		logger: logger,
		runner: evaluator.ExecRunner{},
	}
	if cfg.Report.Enabled {
		s.reporter = report.NewWriter(cfg.Report.Path)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Run executes req to completion, the deadline or cancellation of ctx. A
// cancelled run still returns an outcome and is reported.
func (s *Service) Run(ctx context.Context, req Request) (*Outcome, error) {
	initial, _ := vector.Infer(req.Example)

	ev, err := s.evaluator(req)
	if err != nil {
		return nil, err
	}

	engine, err := s.engine(req, optimization.Config{
		Evaluator:  ev,
		Bounds:     s.cfg.Bounds(),
		Direction:  req.Direction,
		Timeout:    s.cfg.Search.Timeout,
		RandomSeed: s.cfg.Search.RandomSeed,
		Logger:     s.logger.Named(req.Strategy.String()),
		OnProgress: req.OnProgress,
		Clock:      s.clock,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Run started", map[string]interface{}{
		"method":    engine.Name(),
		"evaluator": req.Command,
		"direction": req.Direction.String(),
		"initial":   initial.String(),
		"workers":   ev.Workers(),
	})

	if s.metrics != nil {
		s.metrics.RunStarted()
	}
	res, err := engine.Optimize(ctx, initial)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RunFinished(engine.Name(), "error", math.NaN())
		}
		return nil, errors.Wrap(err, "run").WithKind(errors.ErrInvalidInput).WithComponent(component)
	}
	if s.metrics != nil {
		s.metrics.RunFinished(res.Method, string(res.Termination), res.Best.Score)
	}

	rec := report.Record{
		Method:      res.Method,
		Evaluator:   req.Command,
		Direction:   req.Direction.String(),
		Initial:     initial,
		Final:       res.Final,
		BestScore:   res.Best.Score,
		Elapsed:     res.Elapsed,
		Evaluations: res.Evaluations,
		Termination: string(res.Termination),
	}

	s.logger.Info("Run finished", map[string]interface{}{
		"method":      rec.Method,
		"termination": rec.Termination,
		"best_score":  rec.BestScore,
		"final":       rec.Final.String(),
		"evaluations": rec.Evaluations,
		"elapsed":     rec.Elapsed,
	})

	if s.reporter != nil {
		if err := s.reporter.Append(rec); err != nil {
			s.logger.Error("Failed to write report", map[string]interface{}{"error": err.Error()})
		} else {
			s.logger.Info("Report saved", map[string]interface{}{"path": s.reporter.Path()})
		}
	}

	return &Outcome{Record: rec, Result: res}, nil
}

func (s *Service) evaluator(req Request) (*evaluator.Evaluator, error) {
	opts := []evaluator.Option{
		evaluator.WithRunner(s.runner),
		evaluator.WithTimeout(s.cfg.Evaluator.CallTimeout),
		evaluator.WithSentinel(s.cfg.Sentinel(req.Direction)),
		evaluator.WithWorkers(s.cfg.Workers()),
		evaluator.WithLogger(logging.NewZapLogger(s.logger).Named("evaluator")),
	}
	if s.metrics != nil {
		opts = append(opts, evaluator.WithObserver(s.metrics))
	}

	ev, err := evaluator.New(req.Command, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "build evaluator").WithKind(errors.ErrInvalidInput).WithComponent(component)
	}
	return ev, nil
}

func (s *Service) engine(req Request, cfg optimization.Config) (optimization.Optimizer, error) {
	var (
		engine optimization.Optimizer
		err    error
	)
	switch req.Strategy {
	case Genetic:
		engine, err = genetic.New(cfg, s.cfg.GeneticOptions())
	case Swarm:
		engine, err = swarm.New(cfg, s.cfg.SwarmOptions())
	case Hybrid:
		engine, err = hybrid.New(cfg, s.cfg.HybridOptions())
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown strategy %d", int(req.Strategy)).
			WithComponent(component).WithOperation("engine")
	}
	if err != nil {
		return nil, errors.Wrap(err, "build engine").WithKind(errors.ErrInvalidInput).WithComponent(component)
	}
	return engine, nil
}
