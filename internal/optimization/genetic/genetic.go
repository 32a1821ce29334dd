// Package genetic implements a generational genetic search with elitism and
// per-slot random mutation.
package genetic

import (
	"context"
	"math"
	"math/rand"

	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// Method is the name written to run reports.
const Method = "Genetic Algorithm"

const component = "genetic"

// Options tunes the genetic search
type Options struct {
	// Population is the number of candidates per generation
	Population int

	// Generations caps the generation loop
	Generations int

	// MutationRate is the probability that a numeric slot is perturbed
	MutationRate float64

	// IntegerDelta and RealDelta bound the perturbation of Integer and Real
	// slots, as a fraction of the bounds span
	IntegerDelta float64
	RealDelta    float64

	// GlobalElite copies the global best into slot 0 of every new generation
	// instead of the best candidate of the generation just scored
	GlobalElite bool
}

// DefaultOptions returns the settings of the standalone genetic search
func DefaultOptions() Options {
	return Options{
		Population:   40,
		Generations:  80,
		MutationRate: 0.15,
		IntegerDelta: 0.12,
		RealDelta:    0.08,
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
	if o.MutationRate < 0 || o.MutationRate > 1 {
		return o, optimization.NewErrorf("mutation rate %v outside [0, 1]", o.MutationRate).
			WithComponent(component).WithOperation("options")
	}
	if o.IntegerDelta < 0 || o.RealDelta < 0 {
		return o, optimization.NewError("mutation deltas must not be negative").
			WithComponent(component).WithOperation("options")
	}
	return o, nil
}

// Population is one generation of candidate vectors
type Population []vector.Vector

// Breeder runs the generation loop. The hybrid engine drives it directly.
type Breeder struct {
	Evaluator optimization.Evaluator
	Bounds    optimization.Bounds
	Rand      *rand.Rand
	Options   Options

	// Phase labels progress entries and log lines
	Phase string
}

// Seed builds a random population shaped like seed, with seed itself in
// slot 0.
func (b *Breeder) Seed(seed vector.Vector) Population {
	pop := make(Population, b.Options.Population)
	for i := range pop {
		pop[i] = b.Bounds.Randomize(b.Rand, seed)
	}
	pop[0] = seed.Clone()
	return pop
}

// Evolve scores and regenerates pop until the generation cap, the deadline or
// cancellation. It returns the last population built, which has not been
// scored.
func (b *Breeder) Evolve(ctx context.Context, run *optimization.Tracker, pop Population) (Population, optimization.Termination) {
	total := b.Options.Generations
	for g := 1; g <= total; g++ {
		if term := run.Checkpoint(ctx); term != "" {
			run.Stop(b.Phase, term)
			return pop, term
		}

		scores := b.Evaluator.Batch(ctx, pop)
		run.Count(len(pop))
		if run.Interrupted(ctx) {
			run.Stop(b.Phase, optimization.Cancelled)
			return pop, optimization.Cancelled
		}

		idx := run.Direction().ArgBest(scores)
		if run.Offer(pop[idx], scores[idx]) {
			run.Improved(b.Phase, g)
		}

		elite := pop[idx]
		if b.Options.GlobalElite {
			elite = run.BestVector()
		}
		pop = b.Next(pop, elite)

		run.Record(b.Phase, g, total, scores)
	}
	return pop, optimization.Completed
}

// Next builds the following generation: elite first, then mutated copies of
// parents drawn uniformly from pop.
func (b *Breeder) Next(pop Population, elite vector.Vector) Population {
	next := make(Population, 0, len(pop))
	next = append(next, elite.Clone())
	for len(next) < len(pop) {
		parent := pop[b.Rand.Intn(len(pop))]
		next = append(next, b.Mutate(parent))
	}
	return next
}

// Mutate returns a copy of parent where every numeric slot is, with
// probability MutationRate, shifted by a bounded random delta, clamped and
// re-quantized.
func (b *Breeder) Mutate(parent vector.Vector) vector.Vector {
	child := parent.Clone()
	span := b.Bounds.Span()
	for i := range child {
		if !child[i].Numeric() || b.Rand.Float64() >= b.Options.MutationRate {
			continue
		}

		var delta float64
		if child[i].Kind == vector.Integer {
			d := int64(math.Round(b.Options.IntegerDelta * span))
			delta = float64(b.Rand.Int63n(2*d+1) - d)
		} else {
			d := b.Options.RealDelta * span
			delta = (2*b.Rand.Float64() - 1) * d
		}
		child[i].Value = b.Bounds.Quantize(child[i].Kind, b.Bounds.Clamp(child[i].Value+delta))
	}
	return child
}

// Engine is the standalone genetic search
type Engine struct {
	config  optimization.Config
	options Options
	rng     *rand.Rand
}

// New creates a genetic engine. Zero population or generation counts fall
// back to the defaults.
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

// Optimize implements optimization.Optimizer. The returned Final vector is
// slot 0 of the last population, the elite of the last scored generation; the
// global best is reported separately in Best.
func (e *Engine) Optimize(ctx context.Context, initial vector.Vector) (*optimization.Result, error) {
	if err := e.config.Validate(component, initial); err != nil {
		return nil, err
	}

	run := optimization.NewTracker(e.config)
	seed := e.config.Bounds.Confine(initial)

	baseline := e.config.Evaluator.Batch(ctx, []vector.Vector{seed})
	run.Count(1)
	run.Baseline(ctx, seed, baseline[0])

	b := &Breeder{
		Evaluator: e.config.Evaluator,
		Bounds:    e.config.Bounds,
		Rand:      e.rng,
		Options:   e.options,
		Phase:     component,
	}
	pop, term := b.Evolve(ctx, run, b.Seed(seed))

	return run.Result(Method, pop[0], term), nil
}
