package optimization

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Direction selects whether scores are maximized or minimized
type Direction int

const (
	// Maximize prefers higher scores
	Maximize Direction = iota
	// Minimize prefers lower scores
	Minimize
)

// ParseDirection accepts "max", "min" and the menu digits "1" and "2". An
// empty string means Maximize.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1", "max", "maximize":
		return Maximize, nil
	case "2", "min", "minimize":
		return Minimize, nil
	default:
		return Maximize, fmt.Errorf("unknown direction %q", s)
	}
}

func (d Direction) String() string {
	if d == Minimize {
		return "min"
	}
	return "max"
}

// Better reports whether a is strictly better than b
func (d Direction) Better(a, b float64) bool {
	if d == Minimize {
		return a < b
	}
	return a > b
}

// Worst returns the score every real score improves on
func (d Direction) Worst() float64 {
	if d == Minimize {
		return math.Inf(1)
	}
	return math.Inf(-1)
}

// ArgBest returns the index of the best score, the first one on ties, or -1
// for an empty slice.
func (d Direction) ArgBest(scores []float64) int {
	if len(scores) == 0 {
		return -1
	}
	if d == Minimize {
		return floats.MinIdx(scores)
	}
	return floats.MaxIdx(scores)
}
