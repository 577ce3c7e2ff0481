package param

// Builder provides a fluent API for creating parameter specs.
type Builder struct {
	spec Spec
}

// New creates a builder for a parameter with the given id and name.
// The range defaults to linear 0-1.
func New(id, name string) *Builder {
	return &Builder{
		spec: Spec{
			ID:    id,
			Name:  name,
			Range: LinearRange(0, 1),
		},
	}
}

// Range sets a linear range.
func (b *Builder) Range(min, max float64) *Builder {
	b.spec.Range = LinearRange(min, max)
	return b
}

// SkewedRange sets a skewed range with the given curve factor.
func (b *Builder) SkewedRange(min, max, skew float64) *Builder {
	b.spec.Range = SkewedRange(min, max, skew)
	return b
}

// SteppedRange sets a stepped range with the given increment.
func (b *Builder) SteppedRange(min, max, step float64) *Builder {
	b.spec.Range = SteppedRange(min, max, step)
	return b
}

// Enum sets an enumerated range over the given labels.
func (b *Builder) Enum(labels ...string) *Builder {
	b.spec.Range = EnumRange(labels...)
	return b
}

// Toggle makes the parameter a boolean (off/on).
func (b *Builder) Toggle() *Builder {
	b.spec.Range = SteppedRange(0, 1, 1)
	return b
}

// Default sets the default plain value.
func (b *Builder) Default(value float64) *Builder {
	b.spec.Default = value
	return b
}

// Unit sets the unit string ("dB", "ms", "Hz").
func (b *Builder) Unit(unit string) *Builder {
	b.spec.Unit = unit
	return b
}

// Group sets an optional display group.
func (b *Builder) Group(group string) *Builder {
	b.spec.Group = group
	return b
}

// Build returns the configured spec with the default clamped into range.
func (b *Builder) Build() Spec {
	s := b.spec
	s.Default = s.Range.Clamp(s.Default)
	return s
}
