// Package bridge carries parameter values from the control plane into
// the real-time audio callback without locks or allocation.
package bridge

import (
	"math"
	"sync/atomic"

	"github.com/soundbench/soundbench/pkg/param"
)

// table is one immutable generation of the bridge: a fixed id set with
// one atomic cell per parameter. The slices and index map are never
// mutated after construction, so concurrent readers need no locking;
// only the cell values change, through atomic operations.
type table struct {
	ids   []string
	index map[string]int
	cells []atomic.Uint64
}

func newTable(specs []param.Spec, carry func(id string) (float64, bool)) *table {
	t := &table{
		ids:   make([]string, len(specs)),
		index: make(map[string]int, len(specs)),
		cells: make([]atomic.Uint64, len(specs)),
	}
	for i, s := range specs {
		t.ids[i] = s.ID
		t.index[s.ID] = i
		v := s.Default
		if carry != nil {
			if prev, ok := carry(s.ID); ok {
				v = s.Range.Clamp(prev)
			}
		}
		t.cells[i].Store(math.Float64bits(v))
	}
	return t
}

// Bridge is the atomic parameter store. Writers are the RPC handling
// goroutines; the single reader is the audio thread. The whole backing
// table is replaced on reload via one atomic pointer swap.
type Bridge struct {
	tbl atomic.Pointer[table]
}

// New creates a bridge sized to the given spec list, populated with
// defaults.
func New(specs []param.Spec) *Bridge {
	b := &Bridge{}
	b.tbl.Store(newTable(specs, nil))
	return b
}

// Len returns the current parameter count.
func (b *Bridge) Len() int {
	return len(b.tbl.Load().ids)
}

// Set stores a value for id. Non-blocking, last-write-wins per id; no
// ordering is guaranteed across distinct ids. Reports whether the id
// exists in the current generation.
func (b *Bridge) Set(id string, value float64) bool {
	t := b.tbl.Load()
	i, ok := t.index[id]
	if !ok {
		return false
	}
	t.cells[i].Store(math.Float64bits(value))
	return true
}

// Get returns the current value for id. A plain atomic load, callable
// from the audio thread.
func (b *Bridge) Get(id string) (float64, bool) {
	t := b.tbl.Load()
	i, ok := t.index[id]
	if !ok {
		return 0, false
	}
	return math.Float64frombits(t.cells[i].Load()), true
}

// ReadInto fills dst with the current values in spec order and returns
// the number written. This is the audio thread's per-buffer drain: no
// locks, no allocation, no map iteration order dependence.
func (b *Bridge) ReadInto(dst []float64) int {
	t := b.tbl.Load()
	n := len(t.cells)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float64frombits(t.cells[i].Load())
	}
	return n
}

// Remap replaces the backing store wholesale for a new spec list.
// Values for ids present in both generations carry over (clamped to the
// new range); everything else starts at its spec default. The swap is a
// single atomic pointer publication; a concurrent audio buffer sees
// either the old complete table or the new one, never a mix.
func (b *Bridge) Remap(specs []param.Spec) {
	old := b.tbl.Load()
	next := newTable(specs, func(id string) (float64, bool) {
		i, ok := old.index[id]
		if !ok {
			return 0, false
		}
		return math.Float64frombits(old.cells[i].Load()), true
	})
	b.tbl.Store(next)
}

// Snapshot returns the current id-to-value mapping. Control-plane only.
func (b *Bridge) Snapshot() map[string]float64 {
	t := b.tbl.Load()
	out := make(map[string]float64, len(t.ids))
	for i, id := range t.ids {
		out[id] = math.Float64frombits(t.cells[i].Load())
	}
	return out
}
