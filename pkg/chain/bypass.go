package chain

import (
	"github.com/soundbench/soundbench/pkg/param"
)

// Stage is the bypass transition state of a wrapped node.
type Stage int

const (
	// StageActive runs the wrapped node normally.
	StageActive Stage = iota
	// StageFadingToBypass blends from processed toward dry signal.
	StageFadingToBypass
	// StageBypassed copies input straight to output; the wrapped
	// node's Process is not called at all.
	StageBypassed
	// StageFadingToActive blends from dry back toward processed
	// signal.
	StageFadingToActive
)

// Fade length is sample-rate scaled and clamped so a transition is
// neither a click nor unboundedly long.
const (
	fadeMillis     = 20.0
	minFadeSamples = 64
	maxFadeSamples = 9600
)

// BypassParamID is the bare id of the injected bypass parameter; the id
// on the wire is "{node_id}_bypass" after flattening.
const BypassParamID = "bypass"

// Bypass wraps a node with a click-free enable/disable transition. The
// wrapper injects one boolean parameter ahead of the wrapped node's own
// parameters; the value is read through the same path as any other
// parameter. Toggling mid-fade reverses the blend direction smoothly.
type Bypass struct {
	inner Node
	count int

	stage Stage
	mix   float64 // 1 = fully processed, 0 = fully dry
	step  float64

	dry [][]float32
	wet [][]float32
}

// Wrap wraps a node with bypass handling.
func Wrap(n Node) *Bypass {
	return &Bypass{
		inner: n,
		count: 1 + n.ParamCount(),
		stage: StageActive,
		mix:   1,
	}
}

// TypeID implements Node. The wrapper is transparent: it reports the
// wrapped node's type so instance identity follows the inner node.
func (b *Bypass) TypeID() string { return b.inner.TypeID() }

// ParamSpecs implements Node. The injected bypass toggle comes first.
func (b *Bypass) ParamSpecs() []param.Spec {
	specs := make([]param.Spec, 0, b.count)
	specs = append(specs, param.New(BypassParamID, "Bypass").Toggle().Build())
	return append(specs, b.inner.ParamSpecs()...)
}

// ParamCount implements Node. Cached at wrap time; the split of
// flattened values never touches ParamSpecs.
func (b *Bypass) ParamCount() int { return b.count }

// Inner returns the wrapped node.
func (b *Bypass) Inner() Node { return b.inner }

// Stage returns the current transition stage.
func (b *Bypass) Stage() Stage { return b.stage }

// Prepare implements Node.
func (b *Bypass) Prepare(sampleRate float64, maxFrames, channels int) {
	b.inner.Prepare(sampleRate, maxFrames, channels)

	fade := sampleRate * fadeMillis / 1000.0
	if fade < minFadeSamples {
		fade = minFadeSamples
	}
	if fade > maxFadeSamples {
		fade = maxFadeSamples
	}
	b.step = 1.0 / fade

	b.dry = allocBuffers(channels, maxFrames)
	b.wet = allocBuffers(channels, maxFrames)
}

// Process implements Node. values[0] is the bypass toggle; the rest
// belongs to the wrapped node.
func (b *Bypass) Process(in, out [][]float32, frames int, values []float64) {
	bypassed := values[0] >= 0.5
	b.retarget(bypassed)

	switch b.stage {
	case StageActive:
		b.inner.Process(in, out, frames, values[1:])
		return
	case StageBypassed:
		copyBuffers(out, in, frames)
		return
	}

	// Fading: keep a dry copy before the inner node may overwrite
	// aliased buffers, then blend sample by sample.
	copyBuffers(b.dry, in, frames)
	b.inner.Process(in, b.wet, frames, values[1:])

	dir := b.step
	if b.stage == StageFadingToBypass {
		dir = -b.step
	}

	channels := len(out)
	if len(b.dry) < channels {
		channels = len(b.dry)
	}

	mix := b.mix
	for i := 0; i < frames; i++ {
		mix += dir
		if mix > 1 {
			mix = 1
		}
		if mix < 0 {
			mix = 0
		}
		w := float32(mix)
		d := float32(1 - mix)
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = b.dry[ch][i]*d + b.wet[ch][i]*w
		}
	}
	b.mix = mix

	if b.stage == StageFadingToActive && b.mix >= 1 {
		b.stage = StageActive
	} else if b.stage == StageFadingToBypass && b.mix <= 0 {
		b.stage = StageBypassed
	}
}

// retarget advances the state machine toward the requested target.
// A toggle received mid-fade reverses direction without touching mix,
// so the blend is continuous across the reversal.
func (b *Bypass) retarget(bypassed bool) {
	if bypassed {
		if b.stage == StageActive || b.stage == StageFadingToActive {
			b.stage = StageFadingToBypass
		}
		return
	}
	if b.stage == StageBypassed || b.stage == StageFadingToBypass {
		b.stage = StageFadingToActive
	}
}

// Reset implements Node. Transition state snaps to the nearest stable
// stage; time-dependent inner state is cleared.
func (b *Bypass) Reset() {
	b.inner.Reset()
	switch b.stage {
	case StageFadingToActive:
		b.stage = StageActive
		b.mix = 1
	case StageFadingToBypass:
		b.stage = StageBypassed
		b.mix = 0
	}
}
