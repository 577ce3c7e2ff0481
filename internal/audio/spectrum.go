package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/spectrum"
	"github.com/cwbudde/algo-dsp/dsp/window"
)

// spectrumRingSize is the mono tap capacity. Must be a power of two
// and at least the largest analyzer FFT size.
const spectrumRingSize = 8192

// Spectrum is one analyzer frame: magnitude per bin in dBFS, from DC
// upward, BinHz apart.
type Spectrum struct {
	Bins  []float64
	BinHz float64
}

// sampleRing is a single-writer ring the render callback pushes a mono
// mix into. The reader runs on the control plane and tolerates the
// writer lapping it mid-copy; a partially overwritten frame costs one
// skipped analyzer update, never a stall on the audio thread.
type sampleRing struct {
	buf  []float64
	mask uint64
	w    atomic.Uint64
}

func newSampleRing(size int) *sampleRing {
	if size&(size-1) != 0 {
		panic("ring size must be a power of two")
	}
	return &sampleRing{buf: make([]float64, size), mask: uint64(size - 1)}
}

// push appends one sample. Audio thread only.
func (r *sampleRing) push(x float64) {
	w := r.w.Load()
	r.buf[w&r.mask] = x
	r.w.Store(w + 1)
}

// snapshot copies the most recent len(dst) samples. Returns false until
// enough samples have been written.
func (r *sampleRing) snapshot(dst []float64) bool {
	w := r.w.Load()
	n := uint64(len(dst))
	if w < n {
		return false
	}
	start := w - n
	for i := uint64(0); i < n; i++ {
		dst[i] = r.buf[(start+i)&r.mask]
	}
	return true
}

const spectrumFloorDB = -130.0

// Analyzer turns the engine's output tap into dB spectrum frames. All
// FFT work happens on the caller's goroutine, off the audio thread.
type Analyzer struct {
	mu sync.Mutex

	ring    *sampleRing
	plan    *algofft.Plan[complex128]
	win     []float64
	winGain float64
	binHz   float64

	frame  []float64
	input  []complex128
	output []complex128
	bins   []float64
}

// NewAnalyzer builds an analyzer over the engine's tap. fftSize must be
// a power of two no larger than the tap capacity.
func NewAnalyzer(e *Engine, sampleRate float64, fftSize int) (*Analyzer, error) {
	if fftSize <= 0 || fftSize > spectrumRingSize || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("bad analyzer fft size %d", fftSize)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("analyzer fft plan: %w", err)
	}

	win := window.Generate(window.TypeHann, fftSize, window.WithPeriodic())
	sum := 0.0
	for _, w := range win {
		sum += w
	}

	return &Analyzer{
		ring:    e.ring,
		plan:    plan,
		win:     win,
		winGain: sum / float64(fftSize),
		binHz:   sampleRate / float64(fftSize),
		frame:   make([]float64, fftSize),
		input:   make([]complex128, fftSize),
		output:  make([]complex128, fftSize),
		bins:    make([]float64, fftSize/2+1),
	}, nil
}

// Frame computes one spectrum frame from the latest tapped samples.
// Returns false when the tap has not yet filled one FFT length.
func (a *Analyzer) Frame() (Spectrum, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ring.snapshot(a.frame) {
		return Spectrum{}, false
	}

	for i, s := range a.frame {
		a.input[i] = complex(s*a.win[i], 0)
	}
	if err := a.plan.Forward(a.output, a.input); err != nil {
		return Spectrum{}, false
	}

	const eps = 1e-12
	norm := float64(len(a.frame)) * math.Max(a.winGain, eps)

	mags := spectrum.Magnitude(a.output[:len(a.bins)])
	last := len(mags) - 1
	for k := 0; k <= last; k++ {
		mag := mags[k] / norm
		if k > 0 && k < last {
			mag *= 2
		}
		db := 20 * math.Log10(math.Max(eps, mag))
		if db < spectrumFloorDB {
			db = spectrumFloorDB
		}
		a.bins[k] = db
	}

	out := make([]float64, len(a.bins))
	copy(out, a.bins)
	return Spectrum{Bins: out, BinHz: a.binHz}, true
}
