// Package config loads blackopt settings from the environment, optionally
// overlaid with a YAML file.
package config

import (
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/blackopt/internal/errors"
	"github.com/copyleftdev/blackopt/internal/logging"
	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/optimization/evaluator"
	"github.com/copyleftdev/blackopt/internal/optimization/genetic"
	"github.com/copyleftdev/blackopt/internal/optimization/hybrid"
	"github.com/copyleftdev/blackopt/internal/optimization/swarm"
)

// Sentinel policies for failed evaluations
const (
	// SentinelLegacy scores every failure as negative infinity
	SentinelLegacy = "legacy"
	// SentinelWorst scores failures as the worst value for the direction
	SentinelWorst = "worst"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development" yaml:"environment"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080" yaml:"port"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s" yaml:"read_timeout"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s" yaml:"write_timeout"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s" yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s" yaml:"shutdown_timeout"`
		MaxRuns         int           `env:"HTTP_MAX_RUNS" envDefault:"4" yaml:"max_runs"`
	} `yaml:"http"`
	Logging logging.Config `yaml:"logging"`
	Search  struct {
		MinValue   float64       `env:"SEARCH_MIN" envDefault:"1" yaml:"min"`
		MaxValue   float64       `env:"SEARCH_MAX" envDefault:"1000" yaml:"max"`
		Timeout    time.Duration `env:"SEARCH_TIMEOUT" envDefault:"1200s" yaml:"timeout"`
		RandomSeed int64         `env:"SEARCH_SEED" envDefault:"0" yaml:"seed"`
		Sentinel   string        `env:"SEARCH_SENTINEL" envDefault:"legacy" yaml:"sentinel"`
	} `yaml:"search"`
	Evaluator struct {
		CallTimeout      time.Duration `env:"EVALUATOR_TIMEOUT" envDefault:"30s" yaml:"timeout"`
		Workers          int           `env:"EVALUATOR_WORKERS" envDefault:"0" yaml:"workers"`
		WorkerMultiplier int           `env:"EVALUATOR_WORKER_MULTIPLIER" envDefault:"1" yaml:"worker_multiplier"`
	} `yaml:"evaluator"`
	Genetic struct {
		Population   int     `env:"GA_POPULATION" envDefault:"40" yaml:"population"`
		Generations  int     `env:"GA_GENERATIONS" envDefault:"80" yaml:"generations"`
		MutationRate float64 `env:"GA_MUTATION_RATE" envDefault:"0.15" yaml:"mutation_rate"`
		IntegerDelta float64 `env:"GA_INTEGER_DELTA" envDefault:"0.12" yaml:"integer_delta"`
		RealDelta    float64 `env:"GA_REAL_DELTA" envDefault:"0.08" yaml:"real_delta"`
	} `yaml:"genetic"`
	Swarm struct {
		Particles       int     `env:"PSO_PARTICLES" envDefault:"40" yaml:"particles"`
		Iterations      int     `env:"PSO_ITERATIONS" envDefault:"100" yaml:"iterations"`
		InertiaMax      float64 `env:"PSO_INERTIA_MAX" envDefault:"0.9" yaml:"inertia_max"`
		InertiaMin      float64 `env:"PSO_INERTIA_MIN" envDefault:"0.4" yaml:"inertia_min"`
		Cognitive       float64 `env:"PSO_COGNITIVE" envDefault:"2.05" yaml:"cognitive"`
		Social          float64 `env:"PSO_SOCIAL" envDefault:"2.05" yaml:"social"`
		VelocityClamp   float64 `env:"PSO_VELOCITY_CLAMP" envDefault:"0.2" yaml:"velocity_clamp"`
		InitialVelocity float64 `env:"PSO_INITIAL_VELOCITY" envDefault:"0.05" yaml:"initial_velocity"`
		WallDamping     float64 `env:"PSO_WALL_DAMPING" envDefault:"-0.5" yaml:"wall_damping"`
	} `yaml:"swarm"`
	Hybrid struct {
		Population    int     `env:"HYBRID_POPULATION" envDefault:"40" yaml:"population"`
		Generations   int     `env:"HYBRID_GENERATIONS" envDefault:"30" yaml:"generations"`
		MutationRate  float64 `env:"HYBRID_MUTATION_RATE" envDefault:"0.2" yaml:"mutation_rate"`
		MutationDelta float64 `env:"HYBRID_MUTATION_DELTA" envDefault:"0.1" yaml:"mutation_delta"`
		Iterations    int     `env:"HYBRID_ITERATIONS" envDefault:"60" yaml:"iterations"`
		Inertia       float64 `env:"HYBRID_INERTIA" envDefault:"0.5" yaml:"inertia"`
		Cognitive     float64 `env:"HYBRID_COGNITIVE" envDefault:"2.0" yaml:"cognitive"`
		Social        float64 `env:"HYBRID_SOCIAL" envDefault:"2.0" yaml:"social"`
		VelocityClamp float64 `env:"HYBRID_VELOCITY_CLAMP" envDefault:"0.15" yaml:"velocity_clamp"`
	} `yaml:"hybrid"`
	Report struct {
		Enabled bool   `env:"REPORT_ENABLED" envDefault:"true" yaml:"enabled"`
		Path    string `env:"REPORT_PATH" envDefault:"optimization_report.txt" yaml:"path"`
	} `yaml:"report"`
}

// Load reads the environment, then overlays the YAML file at path when path
// is not empty, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment").WithComponent("config").WithOperation("load")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file").WithComponent("config").WithOperation("load")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path).WithComponent("config").WithOperation("load")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration built from defaults alone.
func Default() *Config {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic("config: invalid envDefault tag: " + err.Error())
	}
	return cfg
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(errors.ErrInvalidInput, format, args...).WithComponent("config").WithOperation("validate")
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if math.IsNaN(c.Search.MinValue) || math.IsNaN(c.Search.MaxValue) ||
		math.IsInf(c.Search.MinValue, 0) || math.IsInf(c.Search.MaxValue, 0) {
		return invalid("search bounds must be finite")
	}
	if c.Search.MinValue > c.Search.MaxValue {
		return invalid("search min %v is greater than max %v", c.Search.MinValue, c.Search.MaxValue)
	}
	if c.Search.Sentinel != SentinelLegacy && c.Search.Sentinel != SentinelWorst {
		return invalid("unknown sentinel policy %q", c.Search.Sentinel)
	}
	if c.Evaluator.Workers < 0 {
		return invalid("evaluator workers must not be negative")
	}
	if c.Evaluator.WorkerMultiplier < 1 {
		return invalid("evaluator worker multiplier must be at least 1")
	}
	if c.HTTP.MaxRuns < 1 {
		return invalid("http max runs must be at least 1")
	}
	for name, p := range map[string]float64{
		"genetic mutation rate": c.Genetic.MutationRate,
		"hybrid mutation rate":  c.Hybrid.MutationRate,
	} {
		if p < 0 || p > 1 {
			return invalid("%s %v outside [0, 1]", name, p)
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, err.Error()).WithComponent("config").WithOperation("validate")
	}
	return nil
}

// Bounds returns the search box
func (c *Config) Bounds() optimization.Bounds {
	return optimization.Bounds{Min: c.Search.MinValue, Max: c.Search.MaxValue}
}

// Workers returns the evaluator pool size
func (c *Config) Workers() int {
	if c.Evaluator.Workers > 0 {
		return c.Evaluator.Workers
	}
	return evaluator.DefaultWorkers(c.Evaluator.WorkerMultiplier)
}

// Sentinel returns the failure score for direction under the configured policy
func (c *Config) Sentinel(direction optimization.Direction) float64 {
	if c.Search.Sentinel == SentinelWorst {
		return direction.Worst()
	}
	return math.Inf(-1)
}

// GeneticOptions returns the standalone genetic settings
func (c *Config) GeneticOptions() genetic.Options {
	return genetic.Options{
		Population:   c.Genetic.Population,
		Generations:  c.Genetic.Generations,
		MutationRate: c.Genetic.MutationRate,
		IntegerDelta: c.Genetic.IntegerDelta,
		RealDelta:    c.Genetic.RealDelta,
	}
}

// SwarmOptions returns the standalone swarm settings
func (c *Config) SwarmOptions() swarm.Options {
	return swarm.Options{
		Particles:       c.Swarm.Particles,
		Iterations:      c.Swarm.Iterations,
		InertiaMax:      c.Swarm.InertiaMax,
		InertiaMin:      c.Swarm.InertiaMin,
		Cognitive:       c.Swarm.Cognitive,
		Social:          c.Swarm.Social,
		VelocityClamp:   c.Swarm.VelocityClamp,
		InitialVelocity: c.Swarm.InitialVelocity,
		WallDamping:     c.Swarm.WallDamping,
	}
}

// HybridOptions returns the hybrid settings
func (c *Config) HybridOptions() hybrid.Options {
	return hybrid.Options{
		Population:    c.Hybrid.Population,
		Generations:   c.Hybrid.Generations,
		MutationRate:  c.Hybrid.MutationRate,
		MutationDelta: c.Hybrid.MutationDelta,
		Iterations:    c.Hybrid.Iterations,
		Inertia:       c.Hybrid.Inertia,
		Cognitive:     c.Hybrid.Cognitive,
		Social:        c.Hybrid.Social,
		VelocityClamp: c.Hybrid.VelocityClamp,
	}
}
