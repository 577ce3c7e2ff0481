// Package loader loads compiled processing modules behind a stable
// binary contract and hot-swaps the active instance under a running
// audio callback.
package loader

import (
	"errors"

	"github.com/soundbench/soundbench/pkg/param"
)

// EntryPoint is the symbol every processing module must export: a
// factory returning the module's processor instance.
const EntryPoint = "NewProcessor"

// Instance is the binary contract of one loaded processing unit. The
// value returned by a module's entry point must satisfy this method
// set; anything missing is a load error, not a crash.
type Instance interface {
	// ParamSpecs returns the module's flattened parameter list.
	ParamSpecs() []param.Spec

	// Prepare sizes internal state for the session format.
	Prepare(sampleRate float64, maxFrames, channels int)

	// ProcessBlock renders one buffer. Called from the audio thread;
	// must not allocate, lock or block.
	ProcessBlock(in, out [][]float32, frames int, values []float64)

	// Reset clears time-dependent state.
	Reset()

	// Close releases module resources. Never called while an audio
	// callback may still hold the instance.
	Close() error
}

// Factory is the required signature of the entry point symbol.
type Factory func() (interface{}, error)

var (
	// ErrMissingEntryPoint reports a module without the factory symbol.
	ErrMissingEntryPoint = errors.New("module does not export " + EntryPoint)
	// ErrBadContract reports an entry point with the wrong shape or a
	// processor missing required methods.
	ErrBadContract = errors.New("module entry point does not satisfy the processor contract")
)
