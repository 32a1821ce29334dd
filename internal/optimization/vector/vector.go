// Package vector holds the mixed-kind parameter vectors passed to black-box
// evaluators and the type inference that builds them from an example string.
package vector

import (
	"math"
	"strconv"
	"strings"
)

// Kind is the type of a single slot in a parameter vector.
type Kind int

const (
	// Integer slots hold whole numbers and are searched.
	Integer Kind = iota
	// Real slots hold floating point numbers and are searched.
	Real
	// Fixed slots hold a string token that search never touches.
	Fixed
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Integer:
		return "int"
	case Real:
		return "float"
	case Fixed:
		return "str"
	default:
		return "unknown"
	}
}

// Slot is one position of a parameter vector.
type Slot struct {
	Kind  Kind
	Value float64
	Token string
}

// Numeric reports whether the slot takes part in search.
func (s Slot) Numeric() bool {
	return s.Kind != Fixed
}

// String renders the slot the way it is passed on the evaluator command line.
func (s Slot) String() string {
	switch s.Kind {
	case Integer:
		return strconv.FormatInt(int64(s.Value), 10)
	case Real:
		text := strconv.FormatFloat(s.Value, 'f', -1, 64)
		if !strings.ContainsAny(text, ".eEnN") {
			text += ".0"
		}
		return text
	default:
		return s.Token
	}
}

// Vector is an ordered parameter vector. Its length and the kind of every slot
// are fixed for the lifetime of a run.
type Vector []Slot

// Clone returns a deep copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Kinds returns the kind of every slot.
func (v Vector) Kinds() []Kind {
	kinds := make([]Kind, len(v))
	for i, s := range v {
		kinds[i] = s.Kind
	}
	return kinds
}

// Args renders every slot as a command line argument.
func (v Vector) Args() []string {
	args := make([]string, len(v))
	for i, s := range v {
		args[i] = s.String()
	}
	return args
}

// String joins the rendered slots with single spaces.
func (v Vector) String() string {
	return strings.Join(v.Args(), " ")
}

// Equal reports whether both vectors hold the same kinds and values.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

// Infer tokenizes example on whitespace and classifies every token. Integer
// literals come first, then real literals, and anything else is kept as a
// lower-cased Fixed token. Numeric zeros are coerced to one so that seeds never
// start on a degenerate value.
func Infer(example string) (Vector, []Kind) {
	fields := strings.Fields(example)
	v := make(Vector, 0, len(fields))
	for _, field := range fields {
		v = append(v, inferSlot(field))
	}
	return v, v.Kinds()
}

func inferSlot(token string) Slot {
	number, ok := decimalText(token)
	if !ok {
		return Slot{Kind: Fixed, Token: strings.ToLower(token)}
	}

	if n, err := strconv.ParseInt(number, 10, 64); err == nil {
		if n == 0 {
			n = 1
		}
		return Slot{Kind: Integer, Value: float64(n)}
	}

	if f, err := strconv.ParseFloat(number, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		if f == 0 {
			f = 1
		}
		return Slot{Kind: Real, Value: f}
	}

	return Slot{Kind: Fixed, Token: strings.ToLower(token)}
}

// decimalText prepares token for strconv. Underscores are accepted only
// between two digits and are dropped; hex literals are never numbers.
func decimalText(token string) (string, bool) {
	if strings.Contains(strings.ToLower(token), "0x") {
		return "", false
	}
	if !strings.Contains(token, "_") {
		return token, true
	}
	for i := 0; i < len(token); i++ {
		if token[i] != '_' {
			continue
		}
		if i == 0 || i == len(token)-1 || !isDigit(token[i-1]) || !isDigit(token[i+1]) {
			return "", false
		}
	}
	return strings.ReplaceAll(token, "_", ""), true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
