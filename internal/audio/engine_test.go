package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soundbench/soundbench/internal/bridge"
	"github.com/soundbench/soundbench/internal/loader"
	"github.com/soundbench/soundbench/pkg/param"
)

// scaleInstance multiplies the input by its single "level" parameter.
type scaleInstance struct {
	lastValues []float64
}

func (s *scaleInstance) ParamSpecs() []param.Spec {
	return []param.Spec{param.New("level", "Level").Range(0, 2).Default(1).Build()}
}

func (s *scaleInstance) Prepare(sampleRate float64, maxFrames, channels int) {}

func (s *scaleInstance) ProcessBlock(in, out [][]float32, frames int, values []float64) {
	s.lastValues = append(s.lastValues[:0], values...)
	level := float32(1)
	if len(values) > 0 {
		level = float32(values[0])
	}
	for ch := range out {
		for i := 0; i < frames; i++ {
			out[ch][i] = in[ch][i] * level
		}
	}
}

func (s *scaleInstance) Reset()       {}
func (s *scaleInstance) Close() error { return nil }

func testEngine(t *testing.T, inst loader.Instance, cfg EngineConfig) (*Engine, *bridge.Bridge) {
	t.Helper()

	log := zap.NewNop()
	ld := loader.New(log)
	var specs []param.Spec
	if inst != nil {
		specs = inst.ParamSpecs()
		ld.Swap(loader.NewHandle(inst))
	}
	br := bridge.New(specs)

	e := NewEngine(log, ld, br, cfg)
	e.Prepare(48000, 512, 2)
	return e, br
}

func render(e *Engine, frames int) [][]float32 {
	out := allocChannels(2, frames)
	e.Render(out, frames)
	return out
}

func TestRenderDrivesInstanceWithBridgeValues(t *testing.T) {
	inst := &scaleInstance{}
	e, br := testEngine(t, inst, EngineConfig{Source: "sine", SineHz: 440, SineAmp: 0.5})

	require.True(t, br.Set("level", 2))
	out := render(e, 512)

	require.Equal(t, []float64{2}, inst.lastValues)

	peak := float32(0)
	for _, s := range out[0] {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	require.InDelta(t, 1.0, float64(peak), 0.05, "0.5 sine through x2 level")
}

func TestRenderWithoutModulePassesSourceThrough(t *testing.T) {
	e, _ := testEngine(t, nil, EngineConfig{Source: "sine", SineHz: 440, SineAmp: 0.25})

	out := render(e, 512)

	silent := true
	for _, s := range out[0] {
		if s != 0 {
			silent = false
			break
		}
	}
	require.False(t, silent)
	require.Equal(t, out[0], out[1])
}

func TestSilenceSourceIsSilent(t *testing.T) {
	e, _ := testEngine(t, &scaleInstance{}, EngineConfig{Source: "silence"})

	out := render(e, 256)
	for ch := range out {
		for _, s := range out[ch][:256] {
			require.Zero(t, s)
		}
	}
}

func TestMeterTracksOutputLevels(t *testing.T) {
	e, _ := testEngine(t, nil, EngineConfig{Source: "sine", SineHz: 440, SineAmp: 0.5})

	_, ok := e.Meter()
	require.False(t, ok, "no meter before the first buffer")

	for i := 0; i < 4; i++ {
		render(e, 512)
	}

	m, ok := e.Meter()
	require.True(t, ok)
	require.InDelta(t, 0.5, m.PeakL, 0.02)
	require.InDelta(t, 0.5/math.Sqrt2, m.RmsL, 0.03)
	require.InDelta(t, m.PeakL, m.PeakR, 1e-9)
}

func TestSampleRingSnapshot(t *testing.T) {
	r := newSampleRing(8)

	dst := make([]float64, 4)
	require.False(t, r.snapshot(dst), "empty ring has no frame")

	for i := 0; i < 10; i++ {
		r.push(float64(i))
	}
	require.True(t, r.snapshot(dst))
	require.Equal(t, []float64{6, 7, 8, 9}, dst)
}

func TestAnalyzerFindsSinePeak(t *testing.T) {
	e, _ := testEngine(t, nil, EngineConfig{Source: "sine", SineHz: 1000, SineAmp: 0.5})

	const fftSize = 1024
	a, err := NewAnalyzer(e, 48000, fftSize)
	require.NoError(t, err)

	_, ok := a.Frame()
	require.False(t, ok, "tap not yet filled")

	for i := 0; i < 4; i++ {
		render(e, 512)
	}

	frame, ok := a.Frame()
	require.True(t, ok)
	require.Len(t, frame.Bins, fftSize/2+1)

	argmax := 0
	for k, db := range frame.Bins {
		if db > frame.Bins[argmax] {
			argmax = k
		}
	}
	peakHz := float64(argmax) * frame.BinHz
	require.InDelta(t, 1000, peakHz, 2*frame.BinHz)
}

func TestAnalyzerRejectsBadSizes(t *testing.T) {
	e, _ := testEngine(t, nil, EngineConfig{})
	for _, size := range []int{0, -1, 1000, spectrumRingSize * 2} {
		_, err := NewAnalyzer(e, 48000, size)
		require.Error(t, err, "size %d", size)
	}
}
