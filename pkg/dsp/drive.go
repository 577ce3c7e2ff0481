package dsp

import (
	"math"

	"github.com/soundbench/soundbench/pkg/param"
)

// Drive is a tanh waveshaper with a dry/wet mix. Output level is
// compensated by the drive amount so that pushing the drive up does not
// just get louder.
type Drive struct{}

// NewDrive creates a drive node.
func NewDrive() *Drive {
	return &Drive{}
}

// TypeID implements chain.Node.
func (d *Drive) TypeID() string { return "drive" }

// ParamSpecs implements chain.Node.
func (d *Drive) ParamSpecs() []param.Spec {
	return []param.Spec{
		param.New("drive", "Drive").Range(1, 20).Default(1).Build(),
		param.New("mix", "Mix").Range(0, 1).Default(1).Build(),
	}
}

// ParamCount implements chain.Node.
func (d *Drive) ParamCount() int { return 2 }

// Prepare implements chain.Node.
func (d *Drive) Prepare(sampleRate float64, maxFrames, channels int) {}

// Process implements chain.Node.
func (d *Drive) Process(in, out [][]float32, frames int, values []float64) {
	drive := values[0]
	if drive < 1 {
		drive = 1
	}
	mix := float32(values[1])
	// Unity gain for a full-scale input at any drive setting.
	norm := 1 / math.Tanh(drive)

	channels := len(out)
	if len(in) < channels {
		channels = len(in)
	}

	for ch := 0; ch < channels; ch++ {
		for i := 0; i < frames; i++ {
			dry := in[ch][i]
			wet := float32(math.Tanh(float64(dry)*drive) * norm)
			out[ch][i] = dry*(1-mix) + wet*mix
		}
	}
}

// Reset implements chain.Node.
func (d *Drive) Reset() {}
