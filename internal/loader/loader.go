package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"plugin"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// symbolSource is the slice of the platform plugin API the loader
// needs. Tests substitute it; production uses plugin.Open.
type symbolSource interface {
	Lookup(name string) (plugin.Symbol, error)
}

// reapInterval is how often retired instances are checked for
// destruction. One period comfortably exceeds any audio buffer, so by
// the time a retired handle's count is seen at zero no callback can
// still be inside it.
const reapInterval = 250 * time.Millisecond

// Loader owns the currently published module instance and the
// lifecycle of its predecessors.
type Loader struct {
	log  *zap.Logger
	open func(path string) (symbolSource, error)

	current    atomic.Pointer[Handle]
	generation atomic.Uint64

	mu      sync.Mutex
	retired []*Handle
}

// New creates a loader.
func New(log *zap.Logger) *Loader {
	return &Loader{
		log: log.Named("loader"),
		open: func(path string) (symbolSource, error) {
			return plugin.Open(path)
		},
	}
}

// Load opens the module at path and validates the binary contract. The
// returned handle is staged, not published; call Swap to make it the
// active instance.
func (l *Loader) Load(path string) (*Handle, error) {
	src, err := l.open(path)
	if err != nil {
		return nil, fmt.Errorf("open module %s: %w", path, err)
	}

	inst, err := resolve(src)
	if err != nil {
		return nil, err
	}

	gen := l.generation.Add(1)
	l.log.Info("module loaded",
		zap.String("path", path),
		zap.Uint64("generation", gen),
		zap.Int("params", len(inst.ParamSpecs())))
	return newHandle(inst, gen, path), nil
}

// resolve looks up the entry point and checks every required method.
func resolve(src symbolSource) (Instance, error) {
	sym, err := src.Lookup(EntryPoint)
	if err != nil {
		return nil, ErrMissingEntryPoint
	}

	factory, ok := sym.(func() (interface{}, error))
	if !ok {
		if indirect, isPtr := sym.(*func() (interface{}, error)); isPtr && *indirect != nil {
			factory = *indirect
		} else {
			return nil, fmt.Errorf("%w: %s has type %T", ErrBadContract, EntryPoint, sym)
		}
	}

	raw, err := factory()
	if err != nil {
		return nil, fmt.Errorf("module entry point failed: %w", err)
	}

	inst, ok := raw.(Instance)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrBadContract, raw)
	}
	return inst, nil
}

// Swap publishes h as the current instance with a single atomic pointer
// store — no partially constructed state is ever visible — and retires
// the previous handle for deferred destruction.
func (l *Loader) Swap(h *Handle) {
	old := l.current.Swap(h)
	if old == nil {
		return
	}
	old.retire()

	l.mu.Lock()
	l.retired = append(l.retired, old)
	l.mu.Unlock()
	l.log.Debug("module retired", zap.Uint64("generation", old.Generation()))
}

// Acquire grips the current instance for the duration of one audio
// buffer. Safe on the audio thread: atomic operations only, with a
// retry if a swap lands between the load and the refcount increment.
// Returns nil when no module is published.
func (l *Loader) Acquire() *Handle {
	for {
		h := l.current.Load()
		if h == nil {
			return nil
		}
		h.refs.Add(1)
		if l.current.Load() == h {
			return h
		}
		// Swapped underneath; drop the stale grip and retry. The
		// retired handle stays alive until the reaper sees zero.
		h.refs.Add(-1)
	}
}

// Current returns the published handle without taking a reference.
// Control-plane introspection only.
func (l *Loader) Current() *Handle {
	return l.current.Load()
}

// Reap destroys retired instances whose reference count has dropped to
// zero and removes their staged artifact files, so a long session does
// not accumulate one .so per rebuild. Returns the number destroyed.
func (l *Loader) Reap() int {
	l.mu.Lock()
	var keep, done []*Handle
	for _, h := range l.retired {
		if h.reapable() {
			done = append(done, h)
		} else {
			keep = append(keep, h)
		}
	}
	l.retired = keep
	l.mu.Unlock()

	for _, h := range done {
		if err := h.close(); err != nil {
			l.log.Warn("module close failed",
				zap.Uint64("generation", h.Generation()), zap.Error(err))
			continue
		}
		// In-process handles have no artifact. The mapping stays valid
		// after the unlink; only the directory entry goes away.
		if p := h.Path(); p != "" {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				l.log.Warn("stale artifact not removed",
					zap.String("path", p), zap.Error(err))
			}
		}
	}
	return len(done)
}

// RunReaper periodically reaps retired instances until ctx is done,
// then retires the current instance and drains everything.
func (l *Loader) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Close()
			return nil
		case <-ticker.C:
			l.Reap()
		}
	}
}

// Close retires the published instance and destroys every drained
// predecessor. The caller must guarantee the audio thread is parked
// first; shutdown ordering in the session enforces this.
func (l *Loader) Close() {
	if cur := l.current.Swap(nil); cur != nil {
		cur.retire()
		l.mu.Lock()
		l.retired = append(l.retired, cur)
		l.mu.Unlock()
	}

	// With audio parked, remaining counts can only fall. Give
	// stragglers a bounded window rather than spinning forever.
	deadline := time.Now().Add(2 * reapInterval)
	for {
		l.Reap()
		l.mu.Lock()
		left := len(l.retired)
		l.mu.Unlock()
		if left == 0 || time.Now().After(deadline) {
			if left > 0 {
				l.log.Warn("instances still referenced at close", zap.Int("count", left))
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
