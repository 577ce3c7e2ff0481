// Package param defines the static parameter model shared by the host,
// the control surface and loaded processing modules.
package param

import (
	"fmt"
	"math"
)

// RangeKind identifies how a parameter maps between its plain value and
// the normalized 0-1 range.
type RangeKind int

const (
	// Linear maps plain values proportionally onto 0-1.
	Linear RangeKind = iota
	// Skewed applies a power-curve mapping, useful for frequency and
	// time parameters where the low end needs more resolution.
	Skewed
	// Stepped quantizes plain values to a fixed increment.
	Stepped
	// Enumerated selects one of a fixed list of labeled variants.
	Enumerated
)

// String returns the wire-level type tag for the range kind.
func (k RangeKind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Skewed:
		return "skewed"
	case Stepped:
		return "stepped"
	case Enumerated:
		return "enum"
	default:
		return "unknown"
	}
}

// Range describes the value domain of a parameter.
type Range struct {
	Kind RangeKind `json:"kind"`
	Min  float64   `json:"min"`
	Max  float64   `json:"max"`

	// Skew is the power-curve factor for Skewed ranges. 1 behaves
	// like Linear; values below 1 expand the low end.
	Skew float64 `json:"skew,omitempty"`

	// Step is the quantization increment for Stepped ranges.
	Step float64 `json:"step,omitempty"`

	// Labels holds the variant names for Enumerated ranges. The plain
	// value of an enumerated parameter is the label index.
	Labels []string `json:"labels,omitempty"`
}

// LinearRange returns a linear range between min and max.
func LinearRange(min, max float64) Range {
	return Range{Kind: Linear, Min: min, Max: max}
}

// SkewedRange returns a skewed range with the given curve factor.
func SkewedRange(min, max, skew float64) Range {
	if skew <= 0 {
		skew = 1
	}
	return Range{Kind: Skewed, Min: min, Max: max, Skew: skew}
}

// SteppedRange returns a stepped range with the given increment.
func SteppedRange(min, max, step float64) Range {
	if step <= 0 {
		step = 1
	}
	return Range{Kind: Stepped, Min: min, Max: max, Step: step}
}

// EnumRange returns an enumerated range over the given labels.
func EnumRange(labels ...string) Range {
	return Range{Kind: Enumerated, Min: 0, Max: float64(len(labels) - 1), Labels: labels}
}

// Clamp limits a plain value to the range and, for Stepped and
// Enumerated kinds, snaps it to the nearest legal value.
func (r Range) Clamp(plain float64) float64 {
	if plain < r.Min {
		plain = r.Min
	}
	if plain > r.Max {
		plain = r.Max
	}
	switch r.Kind {
	case Stepped:
		if r.Step > 0 {
			plain = r.Min + math.Round((plain-r.Min)/r.Step)*r.Step
			if plain > r.Max {
				plain = r.Max
			}
		}
	case Enumerated:
		plain = math.Round(plain)
	}
	return plain
}

// Normalize converts a plain value to the 0-1 range.
func (r Range) Normalize(plain float64) float64 {
	if r.Max <= r.Min {
		return 0
	}
	n := (r.Clamp(plain) - r.Min) / (r.Max - r.Min)
	if r.Kind == Skewed && r.Skew != 1 {
		n = math.Pow(n, r.Skew)
	}
	return n
}

// Denormalize converts a 0-1 value back to the plain range.
func (r Range) Denormalize(n float64) float64 {
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	if r.Kind == Skewed && r.Skew != 1 {
		n = math.Pow(n, 1/r.Skew)
	}
	return r.Clamp(r.Min + n*(r.Max-r.Min))
}

// Spec is the immutable static descriptor of one parameter. A Spec is
// fixed for the lifetime of one loaded module version.
type Spec struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Range   Range   `json:"range"`
	Default float64 `json:"default"`
	Unit    string  `json:"unit,omitempty"`
	Group   string  `json:"group,omitempty"`
}

// Validate checks that the spec is internally consistent.
func (s Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("parameter %q: empty id", s.Name)
	}
	if s.Range.Max < s.Range.Min {
		return fmt.Errorf("parameter %q: max %g below min %g", s.ID, s.Range.Max, s.Range.Min)
	}
	if s.Range.Kind == Enumerated && len(s.Range.Labels) == 0 {
		return fmt.Errorf("parameter %q: enumerated range without labels", s.ID)
	}
	if d := s.Range.Clamp(s.Default); d != s.Default {
		return fmt.Errorf("parameter %q: default %g outside range", s.ID, s.Default)
	}
	return nil
}
