package swarm

import (
	"context"
	"math/rand"

	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// Method is the name written to run reports.
const Method = "Particle Swarm"

const component = "swarm"

// Options tunes the standalone swarm
type Options struct {
	Particles  int
	Iterations int

	// InertiaMax decays linearly to InertiaMin over Iterations
	InertiaMax float64
	InertiaMin float64

	Cognitive float64
	Social    float64

	// VelocityClamp and InitialVelocity are fractions of the bounds span
	VelocityClamp   float64
	InitialVelocity float64

	// WallDamping multiplies the velocity of a component that hit a bound
	WallDamping float64
}

// DefaultOptions returns the settings of the standalone swarm
func DefaultOptions() Options {
	return Options{
		Particles:       40,
		Iterations:      100,
		InertiaMax:      0.9,
		InertiaMin:      0.4,
		Cognitive:       2.05,
		Social:          2.05,
		VelocityClamp:   0.2,
		InitialVelocity: 0.05,
		WallDamping:     -0.5,
	}
}

func (o Options) withDefaults() (Options, error) {
	def := DefaultOptions()
	if o.Particles < 1 {
		o.Particles = def.Particles
	}
	if o.Iterations < 1 {
		o.Iterations = def.Iterations
	}
	if o.VelocityClamp <= 0 {
		return o, optimization.NewErrorf("velocity clamp must be positive, got %v", o.VelocityClamp).
			WithComponent(component).WithOperation("options")
	}
	if o.InitialVelocity < 0 || o.Cognitive < 0 || o.Social < 0 {
		return o, optimization.NewError("initial velocity and learning factors must not be negative").
			WithComponent(component).WithOperation("options")
	}
	return o, nil
}

// Engine is the standalone particle swarm
type Engine struct {
	config  optimization.Config
	options Options
	rng     *rand.Rand
}

// New creates a swarm engine. Zero particle or iteration counts fall back to
// the defaults; coefficients are used as given.
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

// Optimize implements optimization.Optimizer. The initial vector is scored
// directly to seed the global best; Final is the global best vector.
func (e *Engine) Optimize(ctx context.Context, initial vector.Vector) (*optimization.Result, error) {
	if err := e.config.Validate(component, initial); err != nil {
		return nil, err
	}

	run := optimization.NewTracker(e.config)
	seed := e.config.Bounds.Confine(initial)

	run.Baseline(ctx, seed, e.config.Evaluator.Evaluate(ctx, seed))
	run.Count(1)

	s := Random(e.rng, e.config.Bounds, seed, e.options.Particles, e.options.InitialVelocity, e.config.Direction)
	f := &Flight{
		Evaluator:     e.config.Evaluator,
		Bounds:        e.config.Bounds,
		Rand:          e.rng,
		Iterations:    e.options.Iterations,
		Inertia:       LinearInertia(e.options.InertiaMax, e.options.InertiaMin),
		Cognitive:     e.options.Cognitive,
		Social:        e.options.Social,
		VelocityClamp: e.options.VelocityClamp,
		WallDamping:   e.options.WallDamping,
		Phase:         component,
	}
	term := f.Fly(ctx, run, s)

	return run.Result(Method, run.BestVector(), term), nil
}
