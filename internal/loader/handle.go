package loader

import (
	"sync/atomic"
)

// Handle is a reference-counted grip on one loaded module instance.
//
// The loader holds one reference from Load until the handle is retired
// by a swap; the audio thread briefly holds one per buffer via Acquire
// and Release. Destruction happens only on the control plane, through
// the loader's reaper, once the count reaches zero — never on the audio
// thread and never while a callback could still be inside the instance.
type Handle struct {
	inst       Instance
	generation uint64
	path       string

	refs    atomic.Int64
	retired atomic.Bool
	closed  atomic.Bool
}

func newHandle(inst Instance, generation uint64, path string) *Handle {
	h := &Handle{inst: inst, generation: generation, path: path}
	h.refs.Store(1) // loader's own reference
	return h
}

// NewHandle wraps an in-process instance in a handle. Used by sessions
// that start with a built-in graph before the first reload, and swapped
// through the loader like any dynamically loaded module.
func NewHandle(inst Instance) *Handle {
	return newHandle(inst, 0, "")
}

// Instance returns the loaded processor.
func (h *Handle) Instance() Instance { return h.inst }

// Generation returns the load generation number.
func (h *Handle) Generation() uint64 { return h.generation }

// Path returns the artifact path the module was loaded from.
func (h *Handle) Path() string { return h.path }

// Release drops one reference. Pure atomic decrement, safe on the
// audio thread; it never destroys the instance.
func (h *Handle) Release() {
	h.refs.Add(-1)
}

// retire drops the loader's own reference after the handle has been
// unpublished.
func (h *Handle) retire() {
	if h.retired.CompareAndSwap(false, true) {
		h.refs.Add(-1)
	}
}

// reapable reports whether the handle is retired with no outstanding
// references.
func (h *Handle) reapable() bool {
	return h.retired.Load() && h.refs.Load() == 0
}

func (h *Handle) close() error {
	if h.closed.CompareAndSwap(false, true) {
		return h.inst.Close()
	}
	return nil
}
