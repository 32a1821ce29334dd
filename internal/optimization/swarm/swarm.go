// Package swarm implements particle swarm search with inertia scheduling,
// velocity clamping and reflecting walls.
package swarm

import (
	"context"
	"math"
	"math/rand"

	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// Inertia returns the inertia weight for a zero-based iteration out of total.
type Inertia func(iteration, total int) float64

// LinearInertia decays the weight linearly from start to end over the
// iteration budget.
func LinearInertia(start, end float64) Inertia {
	return func(iteration, total int) float64 {
		if total <= 0 {
			return start
		}
		return start - (start-end)*float64(iteration)/float64(total)
	}
}

// FixedInertia keeps the weight constant.
func FixedInertia(w float64) Inertia {
	return func(int, int) float64 { return w }
}

// Particle is a position, its velocity and the best position it has visited.
// Fixed slots carry zero velocity and are never moved.
type Particle struct {
	Position  vector.Vector
	Velocity  []float64
	Best      vector.Vector
	BestScore float64
}

// Swarm is an ordered set of particles that persist across iterations.
type Swarm struct {
	Particles []*Particle
}

// Random places n particles uniformly inside bounds, shaped like seed, with
// velocities drawn from ±initialVelocity times the bounds span. Personal bests
// start at the worst score for direction.
func Random(rng *rand.Rand, bounds optimization.Bounds, seed vector.Vector, n int, initialVelocity float64, direction optimization.Direction) *Swarm {
	vmax := initialVelocity * bounds.Span()
	s := &Swarm{Particles: make([]*Particle, n)}
	for i := range s.Particles {
		pos := bounds.Randomize(rng, seed)
		vel := make([]float64, len(pos))
		for j := range pos {
			if pos[j].Numeric() {
				vel[j] = vmax * (2*rng.Float64() - 1)
			}
		}
		s.Particles[i] = &Particle{
			Position:  pos,
			Velocity:  vel,
			Best:      pos.Clone(),
			BestScore: direction.Worst(),
		}
	}
	return s
}

// FromPopulation turns scored vectors into a resting swarm: zero velocity,
// personal bests at the vectors themselves.
func FromPopulation(positions []vector.Vector, scores []float64) *Swarm {
	s := &Swarm{Particles: make([]*Particle, len(positions))}
	for i, pos := range positions {
		s.Particles[i] = &Particle{
			Position:  pos.Clone(),
			Velocity:  make([]float64, len(pos)),
			Best:      pos.Clone(),
			BestScore: scores[i],
		}
	}
	return s
}

// Positions returns the current particle positions. The slice is new but the
// vectors are shared with the particles.
func (s *Swarm) Positions() []vector.Vector {
	out := make([]vector.Vector, len(s.Particles))
	for i, p := range s.Particles {
		out[i] = p.Position
	}
	return out
}

// Update folds a batch of scores, aligned with Particles, into the personal
// bests and the run's global best.
func (s *Swarm) Update(run *optimization.Tracker, scores []float64, phase string, iteration int) {
	d := run.Direction()
	for i, score := range scores {
		p := s.Particles[i]
		if !d.Better(score, p.BestScore) {
			continue
		}
		p.BestScore = score
		p.Best = p.Position.Clone()
		if run.Offer(p.Position, score) {
			run.Improved(phase, iteration)
		}
	}
}

// Coefficients are the terms of one velocity update.
type Coefficients struct {
	Inertia   float64
	Cognitive float64
	Social    float64

	// VelocityLimit clamps every velocity component to ±VelocityLimit
	VelocityLimit float64

	// WallDamping multiplies the velocity of a component that hit a bound
	WallDamping float64
}

// Move advances every particle one step toward its personal best and gbest.
// Each numeric slot draws its own pair of random coefficients.
func (s *Swarm) Move(rng *rand.Rand, bounds optimization.Bounds, gbest vector.Vector, c Coefficients) {
	for _, p := range s.Particles {
		for j := range p.Position {
			slot := &p.Position[j]
			if !slot.Numeric() {
				continue
			}

			r1, r2 := rng.Float64(), rng.Float64()
			x := slot.Value
			vel := c.Inertia*p.Velocity[j] +
				c.Cognitive*r1*(p.Best[j].Value-x) +
				c.Social*r2*(gbest[j].Value-x)
			vel = math.Max(-c.VelocityLimit, math.Min(c.VelocityLimit, vel))

			next := x + vel
			if next < bounds.Min {
				next = bounds.Min
				vel *= c.WallDamping
			} else if next > bounds.Max {
				next = bounds.Max
				vel *= c.WallDamping
			}

			p.Velocity[j] = vel
			slot.Value = bounds.Quantize(slot.Kind, next)
		}
	}
}

// Flight runs the iteration loop over a swarm. The hybrid engine uses it for
// its refinement phase.
type Flight struct {
	Evaluator  optimization.Evaluator
	Bounds     optimization.Bounds
	Rand       *rand.Rand
	Iterations int
	Inertia    Inertia
	Cognitive  float64
	Social     float64

	// VelocityClamp is the velocity limit as a fraction of the bounds span
	VelocityClamp float64
	WallDamping   float64

	// Phase labels progress entries and log lines
	Phase string
}

// Fly scores and moves the swarm until the iteration cap, the deadline or
// cancellation.
func (f *Flight) Fly(ctx context.Context, run *optimization.Tracker, s *Swarm) optimization.Termination {
	limit := f.Bounds.Span() * f.VelocityClamp
	for t := 0; t < f.Iterations; t++ {
		if term := run.Checkpoint(ctx); term != "" {
			run.Stop(f.Phase, term)
			return term
		}

		scores := f.Evaluator.Batch(ctx, s.Positions())
		run.Count(len(scores))
		if run.Interrupted(ctx) {
			run.Stop(f.Phase, optimization.Cancelled)
			return optimization.Cancelled
		}
		s.Update(run, scores, f.Phase, t+1)

		s.Move(f.Rand, f.Bounds, run.BestVector(), Coefficients{
			Inertia:       f.Inertia(t, f.Iterations),
			Cognitive:     f.Cognitive,
			Social:        f.Social,
			VelocityLimit: limit,
			WallDamping:   f.WallDamping,
		})

		run.Record(f.Phase, t+1, f.Iterations, scores)
	}
	return optimization.Completed
}
