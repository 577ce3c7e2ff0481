package dsp

import (
	"math"

	"github.com/soundbench/soundbench/pkg/param"
)

// Filter is a second-order low-pass filter (Direct Form I biquad) with
// cutoff and resonance controls. Coefficients are recomputed only when a
// control moves.
type Filter struct {
	sampleRate float64

	lastCutoff float64
	lastQ      float64

	a1, a2     float32
	b0, b1, b2 float32

	x1, x2 []float32
	y1, y2 []float32
}

// NewFilter creates a low-pass filter node.
func NewFilter() *Filter {
	return &Filter{}
}

// TypeID implements chain.Node.
func (f *Filter) TypeID() string { return "filter" }

// ParamSpecs implements chain.Node.
func (f *Filter) ParamSpecs() []param.Spec {
	return []param.Spec{
		param.New("cutoff", "Cutoff").SkewedRange(20, 20000, 0.3).Default(1000).Unit("Hz").Build(),
		param.New("resonance", "Resonance").Range(0.5, 10).Default(0.707).Build(),
	}
}

// ParamCount implements chain.Node.
func (f *Filter) ParamCount() int { return 2 }

// Prepare implements chain.Node.
func (f *Filter) Prepare(sampleRate float64, maxFrames, channels int) {
	f.sampleRate = sampleRate
	f.x1 = make([]float32, channels)
	f.x2 = make([]float32, channels)
	f.y1 = make([]float32, channels)
	f.y2 = make([]float32, channels)
	f.lastCutoff = 0
	f.lastQ = 0
}

func (f *Filter) setLowpass(cutoff, q float64) {
	// Cookbook lowpass, normalized by a0.
	omega := 2 * math.Pi * cutoff / f.sampleRate
	sinOmega := math.Sin(omega)
	cosOmega := math.Cos(omega)
	alpha := sinOmega / (2 * q)

	invA0 := 1 / (1 + alpha)
	f.b0 = float32((1 - cosOmega) / 2 * invA0)
	f.b1 = float32((1 - cosOmega) * invA0)
	f.b2 = f.b0
	f.a1 = float32(-2 * cosOmega * invA0)
	f.a2 = float32((1 - alpha) * invA0)
}

// Process implements chain.Node.
func (f *Filter) Process(in, out [][]float32, frames int, values []float64) {
	cutoff := values[0]
	q := values[1]
	if nyquist := f.sampleRate * 0.49; cutoff > nyquist {
		cutoff = nyquist
	}
	if cutoff != f.lastCutoff || q != f.lastQ {
		f.setLowpass(cutoff, q)
		f.lastCutoff = cutoff
		f.lastQ = q
	}

	channels := len(out)
	if len(in) < channels {
		channels = len(in)
	}
	if len(f.x1) < channels {
		channels = len(f.x1)
	}

	for ch := 0; ch < channels; ch++ {
		x1, x2 := f.x1[ch], f.x2[ch]
		y1, y2 := f.y1[ch], f.y2[ch]
		for i := 0; i < frames; i++ {
			x0 := in[ch][i]
			y0 := f.b0*x0 + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
			x2, x1 = x1, x0
			y2, y1 = y1, y0
			out[ch][i] = y0
		}
		f.x1[ch], f.x2[ch] = x1, x2
		f.y1[ch], f.y2[ch] = y1, y2
	}
}

// Reset implements chain.Node.
func (f *Filter) Reset() {
	for ch := range f.x1 {
		f.x1[ch] = 0
		f.x2[ch] = 0
		f.y1[ch] = 0
		f.y2[ch] = 0
	}
}
