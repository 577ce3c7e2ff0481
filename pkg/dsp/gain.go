// Package dsp provides a small set of leaf processors used by tests and
// the bundled demo module.
package dsp

import (
	"math"

	"github.com/soundbench/soundbench/pkg/param"
)

// Gain applies a dB-scaled gain with per-sample ramping to avoid zipper
// noise when the level changes between buffers.
type Gain struct {
	current float64
	ramp    float64
}

// NewGain creates a gain node.
func NewGain() *Gain {
	return &Gain{current: 1}
}

// TypeID implements chain.Node.
func (g *Gain) TypeID() string { return "gain" }

// ParamSpecs implements chain.Node.
func (g *Gain) ParamSpecs() []param.Spec {
	return []param.Spec{
		param.New("level", "Level").Range(-60, 12).Default(0).Unit("dB").Build(),
	}
}

// ParamCount implements chain.Node.
func (g *Gain) ParamCount() int { return 1 }

// Prepare implements chain.Node.
func (g *Gain) Prepare(sampleRate float64, maxFrames, channels int) {
	// ~5ms ramp toward the target gain.
	g.ramp = 1.0 / (sampleRate * 0.005)
	if g.ramp > 1 {
		g.ramp = 1
	}
}

// Process implements chain.Node.
func (g *Gain) Process(in, out [][]float32, frames int, values []float64) {
	target := math.Pow(10, values[0]/20)

	channels := len(out)
	if len(in) < channels {
		channels = len(in)
	}

	cur := g.current
	for i := 0; i < frames; i++ {
		cur += (target - cur) * g.ramp
		f := float32(cur)
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = in[ch][i] * f
		}
	}
	g.current = cur
}

// Reset implements chain.Node.
func (g *Gain) Reset() {
	g.current = 1
}
