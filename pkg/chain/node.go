// Package chain provides the composable processor tree: serial chains,
// per-node bypass wrapping and deterministic parameter identity
// assignment. Composition happens once per module build; the resulting
// tree yields the flattened parameter list consumed by the host.
package chain

import (
	"github.com/soundbench/soundbench/pkg/param"
)

// Node is one processing unit in a composed tree.
//
// Process may be called with in and out aliasing the same buffers; every
// implementation must tolerate in == out. The values slice carries the
// node's current parameter values in ParamSpecs order, one element per
// spec. Process is reached from the audio callback and must not
// allocate, lock or block.
type Node interface {
	// TypeID is the stable identity stem of the node type ("gain",
	// "delay"). Instance ids are derived from it during flattening.
	TypeID() string

	// ParamSpecs returns the node's parameter descriptors with bare
	// (unqualified) ids. Called once at composition time, never from
	// the processing path.
	ParamSpecs() []param.Spec

	// ParamCount reports the length of ParamSpecs without building
	// the list. The processing path splits flattened values with this
	// accessor alone.
	ParamCount() int

	// Prepare sizes internal state for the session format. Called
	// before processing starts and after every format change.
	Prepare(sampleRate float64, maxFrames, channels int)

	// Process renders frames samples from in to out.
	Process(in, out [][]float32, frames int, values []float64)

	// Reset clears time-dependent state (delay lines, envelopes).
	Reset()
}

// copyBuffers copies frames samples per channel from src to dst. Both
// sides may have differing channel counts; the overlap is copied.
func copyBuffers(dst, src [][]float32, frames int) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for ch := 0; ch < n; ch++ {
		copy(dst[ch][:frames], src[ch][:frames])
	}
}

// allocBuffers returns a channels x frames scratch buffer.
func allocBuffers(channels, frames int) [][]float32 {
	buf := make([][]float32, channels)
	for ch := range buf {
		buf[ch] = make([]float32, frames)
	}
	return buf
}
