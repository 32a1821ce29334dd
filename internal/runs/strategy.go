package runs

import (
	"strings"

	"github.com/copyleftdev/blackopt/internal/errors"
	"github.com/copyleftdev/blackopt/internal/optimization/genetic"
	"github.com/copyleftdev/blackopt/internal/optimization/hybrid"
	"github.com/copyleftdev/blackopt/internal/optimization/swarm"
)

// Strategy selects the search engine of a run
type Strategy int

const (
	Genetic Strategy = iota + 1
	Swarm
	Hybrid
)

// Strategies lists every strategy in menu order
var Strategies = []Strategy{Genetic, Swarm, Hybrid}

// ParseStrategy accepts the menu number or a name
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "ga", "genetic":
		return Genetic, nil
	case "2", "pso", "swarm":
		return Swarm, nil
	case "3", "hybrid":
		return Hybrid, nil
	default:
		return 0, errors.Wrapf(errors.ErrInvalidInput, "unknown strategy %q", s)
	}
}

// String returns the short name of the strategy
func (s Strategy) String() string {
	switch s {
	case Genetic:
		return "genetic"
	case Swarm:
		return "swarm"
	case Hybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Method returns the name the engine writes to reports
func (s Strategy) Method() string {
	switch s {
	case Genetic:
		return genetic.Method
	case Swarm:
		return swarm.Method
	case Hybrid:
		return hybrid.Method
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
