package dsp

import (
	"github.com/soundbench/soundbench/pkg/param"
)

const maxDelayMillis = 2000

// Delay is a feedback delay line with a wet/dry mix control.
type Delay struct {
	sampleRate float64
	lines      [][]float32
	write      int
	size       int
}

// NewDelay creates a delay node.
func NewDelay() *Delay {
	return &Delay{}
}

// TypeID implements chain.Node.
func (d *Delay) TypeID() string { return "delay" }

// ParamSpecs implements chain.Node.
func (d *Delay) ParamSpecs() []param.Spec {
	return []param.Spec{
		param.New("time", "Time").SkewedRange(1, maxDelayMillis, 0.5).Default(250).Unit("ms").Build(),
		param.New("feedback", "Feedback").Range(0, 0.95).Default(0.3).Build(),
		param.New("mix", "Mix").Range(0, 1).Default(0.25).Build(),
	}
}

// ParamCount implements chain.Node.
func (d *Delay) ParamCount() int { return 3 }

// Prepare implements chain.Node.
func (d *Delay) Prepare(sampleRate float64, maxFrames, channels int) {
	d.sampleRate = sampleRate
	d.size = int(sampleRate*maxDelayMillis/1000) + 1
	d.lines = make([][]float32, channels)
	for ch := range d.lines {
		d.lines[ch] = make([]float32, d.size)
	}
	d.write = 0
}

// Process implements chain.Node. Safe for in == out: the delayed sample
// is read before the line is written.
func (d *Delay) Process(in, out [][]float32, frames int, values []float64) {
	delaySamples := int(values[0] * d.sampleRate / 1000)
	if delaySamples < 1 {
		delaySamples = 1
	}
	if delaySamples >= d.size {
		delaySamples = d.size - 1
	}
	feedback := float32(values[1])
	mix := float32(values[2])

	channels := len(out)
	if len(in) < channels {
		channels = len(in)
	}
	if len(d.lines) < channels {
		channels = len(d.lines)
	}

	write := d.write
	for i := 0; i < frames; i++ {
		read := write - delaySamples
		if read < 0 {
			read += d.size
		}
		for ch := 0; ch < channels; ch++ {
			dry := in[ch][i]
			wet := d.lines[ch][read]
			d.lines[ch][write] = dry + wet*feedback
			out[ch][i] = dry*(1-mix) + wet*mix
		}
		write++
		if write >= d.size {
			write = 0
		}
	}
	d.write = write
}

// Reset implements chain.Node.
func (d *Delay) Reset() {
	for ch := range d.lines {
		for i := range d.lines[ch] {
			d.lines[ch][i] = 0
		}
	}
	d.write = 0
}
