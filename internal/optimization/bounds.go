package optimization

import (
	"math"
	"math/rand"

	"github.com/copyleftdev/blackopt/internal/optimization/vector"
)

// Default search bounds
const (
	DefaultMinValue = 1
	DefaultMaxValue = 1000
)

// realPrecision is the number of decimals kept on Real slots.
const realPrecision = 1e6

// Bounds is the box shared by every Integer and Real slot. It is a value and
// is never mutated once a run starts.
type Bounds struct {
	Min float64
	Max float64
}

// DefaultBounds returns the [1, 1000] box
func DefaultBounds() Bounds {
	return Bounds{Min: DefaultMinValue, Max: DefaultMaxValue}
}

// Validate checks that the box is usable for the given slot kinds
func (b Bounds) Validate(kinds []vector.Kind) error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
		return NewErrorf("bounds must be finite, got [%v, %v]", b.Min, b.Max)
	}
	if b.Min > b.Max {
		return NewErrorf("min %v is greater than max %v", b.Min, b.Max)
	}
	for _, k := range kinds {
		if k == vector.Integer && math.Ceil(b.Min) > math.Floor(b.Max) {
			return NewErrorf("no integer lies within [%v, %v]", b.Min, b.Max)
		}
	}
	return nil
}

// Span returns Max - Min
func (b Bounds) Span() float64 {
	return b.Max - b.Min
}

// Clamp limits x to the box
func (b Bounds) Clamp(x float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, x))
}

// Quantize rounds x for the slot kind and keeps the rounded value inside the
// box. Integer slots round half to even, Real slots keep six decimals.
func (b Bounds) Quantize(kind vector.Kind, x float64) float64 {
	switch kind {
	case vector.Integer:
		r := math.RoundToEven(x)
		if r < b.Min {
			r = math.Ceil(b.Min)
		}
		if r > b.Max {
			r = math.Floor(b.Max)
		}
		return r
	case vector.Real:
		return b.Clamp(math.RoundToEven(x*realPrecision) / realPrecision)
	default:
		return x
	}
}

// Sample draws a uniform value for a slot of the given kind
func (b Bounds) Sample(rng *rand.Rand, kind vector.Kind) float64 {
	if kind == vector.Integer {
		lo, hi := math.Ceil(b.Min), math.Floor(b.Max)
		return lo + float64(rng.Int63n(int64(hi-lo)+1))
	}
	return b.Quantize(kind, b.Min+rng.Float64()*b.Span())
}

// Randomize returns a random vector shaped like template. Fixed slots are
// copied verbatim.
func (b Bounds) Randomize(rng *rand.Rand, template vector.Vector) vector.Vector {
	v := template.Clone()
	for i := range v {
		if v[i].Numeric() {
			v[i].Value = b.Sample(rng, v[i].Kind)
		}
	}
	return v
}

// Confine returns a copy of v with every numeric slot clamped and quantized
func (b Bounds) Confine(v vector.Vector) vector.Vector {
	out := v.Clone()
	for i := range out {
		if out[i].Numeric() {
			out[i].Value = b.Quantize(out[i].Kind, b.Clamp(out[i].Value))
		}
	}
	return out
}

// Contains reports whether every numeric slot of v lies inside the box and
// every Fixed slot equals the one in reference.
func (b Bounds) Contains(v, reference vector.Vector) bool {
	if len(v) != len(reference) {
		return false
	}
	for i, s := range v {
		if s.Kind != reference[i].Kind {
			return false
		}
		if !s.Numeric() {
			if s.Token != reference[i].Token {
				return false
			}
			continue
		}
		if s.Value < b.Min || s.Value > b.Max {
			return false
		}
		if s.Kind == vector.Integer && s.Value != math.Trunc(s.Value) {
			return false
		}
	}
	return true
}
