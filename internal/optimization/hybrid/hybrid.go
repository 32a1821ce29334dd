// Package hybrid chains the two searches: a short, high-mutation genetic phase
// for coverage, then a particle swarm seeded from its last population for
// refinement. Both phases share one global best.
package hybrid

import (
	"context"
	"math/rand"

	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/optimization/genetic"
	"github.com/copyleftdev/blackopt/internal/optimization/swarm"
	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// Method is the name written to run reports.
const Method = "Hybrid GA + Swarm"

const (
	component    = "hybrid"
	geneticPhase = "hybrid/genetic"
	swarmPhase   = "hybrid/swarm"
)

// Options tunes both phases
type Options struct {
	// Genetic phase
	Population    int
	Generations   int
	MutationRate  float64
	MutationDelta float64

	// Swarm phase. Inertia is constant and particles stop dead at the bounds.
	Iterations    int
	Inertia       float64
	Cognitive     float64
	Social        float64
	VelocityClamp float64
}

// DefaultOptions returns the settings of the hybrid search
func DefaultOptions() Options {
	return Options{
		Population:    40,
		Generations:   30,
		MutationRate:  0.2,
		MutationDelta: 0.1,
		Iterations:    60,
		Inertia:       0.5,
		Cognitive:     2.0,
		Social:        2.0,
		VelocityClamp: 0.15,
	}
}

func (o Options) withDefaults() (Options, error) {
	def := DefaultOptions()
	if o.Population < 1 {
		o.Population = def.Population
	}
	if o.Generations < 1 {
		o.Generations = def.Generations
	}
	if o.Iterations < 1 {
		o.Iterations = def.Iterations
	}
	if o.MutationRate < 0 || o.MutationRate > 1 {
		return o, optimization.NewErrorf("mutation rate %v outside [0, 1]", o.MutationRate).
			WithComponent(component).WithOperation("options")
	}
	if o.MutationDelta < 0 {
		return o, optimization.NewError("mutation delta must not be negative").
			WithComponent(component).WithOperation("options")
	}
	if o.VelocityClamp <= 0 {
		return o, optimization.NewErrorf("velocity clamp must be positive, got %v", o.VelocityClamp).
			WithComponent(component).WithOperation("options")
	}
	return o, nil
}

// Engine is the GA→PSO pipeline
type Engine struct {
	config  optimization.Config
	options Options
	rng     *rand.Rand
}

// New creates a hybrid engine
func New(config optimization.Config, options Options) (*Engine, error) {
	options, err := options.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Engine{
		config:  config,
		options: options,
		rng:     config.NewRand(),
	}, nil
}

// Name implements optimization.Optimizer
func (e *Engine) Name() string {
	return Method
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.options
}

// Optimize implements optimization.Optimizer. Final is the global best vector.
func (e *Engine) Optimize(ctx context.Context, initial vector.Vector) (*optimization.Result, error) {
	if err := e.config.Validate(component, initial); err != nil {
		return nil, err
	}

	run := optimization.NewTracker(e.config)
	seed := e.config.Bounds.Confine(initial)

	run.Baseline(ctx, seed, e.config.Evaluator.Evaluate(ctx, seed))
	run.Count(1)

	breeder := &genetic.Breeder{
		Evaluator: e.config.Evaluator,
		Bounds:    e.config.Bounds,
		Rand:      e.rng,
		Options: genetic.Options{
			Population:   e.options.Population,
			Generations:  e.options.Generations,
			MutationRate: e.options.MutationRate,
			IntegerDelta: e.options.MutationDelta,
			RealDelta:    e.options.MutationDelta,
			GlobalElite:  true,
		},
		Phase: geneticPhase,
	}
	pop, term := breeder.Evolve(ctx, run, breeder.Seed(seed))
	if term != optimization.Completed {
		return run.Result(Method, run.BestVector(), term), nil
	}

	s, term := e.convert(ctx, run, pop)
	if term != optimization.Completed {
		return run.Result(Method, run.BestVector(), term), nil
	}

	flight := &swarm.Flight{
		Evaluator:     e.config.Evaluator,
		Bounds:        e.config.Bounds,
		Rand:          e.rng,
		Iterations:    e.options.Iterations,
		Inertia:       swarm.FixedInertia(e.options.Inertia),
		Cognitive:     e.options.Cognitive,
		Social:        e.options.Social,
		VelocityClamp: e.options.VelocityClamp,
		WallDamping:   0,
		Phase:         swarmPhase,
	}
	term = flight.Fly(ctx, run, s)

	return run.Result(Method, run.BestVector(), term), nil
}

// convert scores the last genetic population once and turns it into a
// resting swarm. Those scores also count toward the global best. A batch cut
// short by cancellation is dropped.
func (e *Engine) convert(ctx context.Context, run *optimization.Tracker, pop genetic.Population) (*swarm.Swarm, optimization.Termination) {
	positions := []vector.Vector(pop)
	scores := e.config.Evaluator.Batch(ctx, positions)
	run.Count(len(scores))
	if run.Interrupted(ctx) {
		run.Stop(swarmPhase, optimization.Cancelled)
		return nil, optimization.Cancelled
	}

	for i, score := range scores {
		if run.Offer(positions[i], score) {
			run.Improved(swarmPhase, 0)
		}
	}
	return swarm.FromPopulation(positions, scores), optimization.Completed
}
