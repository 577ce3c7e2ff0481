package audio

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"
	"go.uber.org/zap"

	"github.com/soundbench/soundbench/internal/bridge"
	"github.com/soundbench/soundbench/internal/loader"
)

// MaxParams bounds the parameter-value scratch. The audio thread never
// allocates, so the scratch is sized once to a ceiling no realistic
// chain reaches; reloads exposing more parameters are rejected before
// the swap so the render path never hands a module a short value slice.
const MaxParams = 1024

// Meter is one frame of peak/RMS values, linear amplitude.
type Meter struct {
	PeakL float64
	RmsL  float64
	PeakR float64
	RmsR  float64
}

// EngineConfig selects the test-signal source feeding the chain input.
type EngineConfig struct {
	// Source is "silence" or "sine".
	Source string

	// SineHz and SineAmp shape the sine source. Zero means 440 Hz at
	// amplitude 0.25.
	SineHz  float64
	SineAmp float64
}

// Engine is the render callback body: it grips the current module
// instance, drains the parameter bridge, runs the module's process
// call, and taps the output for metering. Everything on the Render
// path is atomic loads and arithmetic.
type Engine struct {
	log *zap.Logger
	ld  *loader.Loader
	br  *bridge.Bridge

	sampleRate float64
	channels   int

	values []float64
	in     [][]float32
	tap    []float64

	sine          bool
	phase         float64
	phaseInc      float64
	sineHzPending float64
	sineAmp       float64

	// meterCells holds peakL, rmsL, peakR, rmsR as float64 bit
	// patterns; meterSeq counts published frames so a reader can tell
	// "no data yet" from silence.
	meterCells [4]atomic.Uint64
	meterSeq   atomic.Uint64

	ring *sampleRing
}

// NewEngine wires the render path. Call Prepare before the first
// Render.
func NewEngine(log *zap.Logger, ld *loader.Loader, br *bridge.Bridge, cfg EngineConfig) *Engine {
	e := &Engine{
		log:  log.Named("audio"),
		ld:   ld,
		br:   br,
		sine: cfg.Source == "sine",
		ring: newSampleRing(spectrumRingSize),
	}
	hz := cfg.SineHz
	if hz <= 0 {
		hz = 440
	}
	e.sineAmp = cfg.SineAmp
	if e.sineAmp <= 0 {
		e.sineAmp = 0.25
	}
	// Phase increment needs the sample rate, so it is computed in
	// Prepare.
	e.sineHzPending = hz
	return e
}

// Prepare sizes every scratch buffer. Must be called before Render and
// never concurrently with it.
func (e *Engine) Prepare(sampleRate float64, maxFrames, channels int) {
	e.sampleRate = sampleRate
	e.channels = channels
	e.values = make([]float64, MaxParams)
	e.in = allocChannels(channels, maxFrames)
	e.tap = make([]float64, maxFrames)
	e.phaseInc = 2 * math.Pi * e.sineHzPending / sampleRate

	e.log.Info("prepared",
		zap.Float64("sampleRate", sampleRate),
		zap.Int("maxFrames", maxFrames),
		zap.Int("channels", channels))
}

// Render is the audio callback body. Real-time safe: no allocation, no
// locks, no logging.
func (e *Engine) Render(out [][]float32, frames int) {
	e.fillSource(frames)

	h := e.ld.Acquire()
	if h == nil {
		for ch := range out {
			copy(out[ch][:frames], e.in[ch][:frames])
		}
	} else {
		n := e.br.ReadInto(e.values)
		h.Instance().ProcessBlock(e.in, out, frames, e.values[:n])
		h.Release()
	}

	e.updateMeters(out, frames)
	e.pushSpectrum(out, frames)
}

func (e *Engine) fillSource(frames int) {
	if !e.sine {
		for ch := range e.in {
			buf := e.in[ch][:frames]
			for i := range buf {
				buf[i] = 0
			}
		}
		return
	}

	first := e.in[0][:frames]
	for i := range first {
		first[i] = float32(e.sineAmp * math.Sin(e.phase))
		e.phase += e.phaseInc
	}
	if e.phase > 2*math.Pi {
		e.phase = math.Mod(e.phase, 2*math.Pi)
	}
	for ch := 1; ch < len(e.in); ch++ {
		copy(e.in[ch][:frames], first)
	}
}

func (e *Engine) updateMeters(out [][]float32, frames int) {
	peakL, rmsL := e.channelLevels(out[0], frames)
	peakR, rmsR := peakL, rmsL
	if len(out) > 1 {
		peakR, rmsR = e.channelLevels(out[1], frames)
	}

	e.meterCells[0].Store(math.Float64bits(peakL))
	e.meterCells[1].Store(math.Float64bits(rmsL))
	e.meterCells[2].Store(math.Float64bits(peakR))
	e.meterCells[3].Store(math.Float64bits(rmsR))
	e.meterSeq.Add(1)
}

func (e *Engine) channelLevels(buf []float32, frames int) (peak, rms float64) {
	x := e.tap[:frames]
	for i := 0; i < frames; i++ {
		x[i] = float64(buf[i])
	}
	peak = vecmath.MaxAbs(x)
	rms = math.Sqrt(vecmath.DotProduct(x, x) / float64(frames))
	return peak, rms
}

func (e *Engine) pushSpectrum(out [][]float32, frames int) {
	if len(out) == 1 {
		for i := 0; i < frames; i++ {
			e.ring.push(float64(out[0][i]))
		}
		return
	}
	for i := 0; i < frames; i++ {
		e.ring.push(0.5 * (float64(out[0][i]) + float64(out[1][i])))
	}
}

// Meter returns the most recently published meter frame. ok is false
// before the first rendered buffer.
func (e *Engine) Meter() (Meter, bool) {
	if e.meterSeq.Load() == 0 {
		return Meter{}, false
	}
	return Meter{
		PeakL: math.Float64frombits(e.meterCells[0].Load()),
		RmsL:  math.Float64frombits(e.meterCells[1].Load()),
		PeakR: math.Float64frombits(e.meterCells[2].Load()),
		RmsR:  math.Float64frombits(e.meterCells[3].Load()),
	}, true
}
