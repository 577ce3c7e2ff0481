// Package rebuild orchestrates the file-change to module-reload
// pipeline: build guarding, external build and extraction subprocesses,
// and handing the validated result to the session.
package rebuild

import (
	"sync"
	"sync/atomic"
)

// Guard is the single-flight gate around rebuilds. TryAcquire never
// blocks; a change signal arriving mid-build queues at most one
// follow-up retry instead of stacking.
type Guard struct {
	busy   atomic.Bool
	queued atomic.Bool
	retry  chan struct{}
}

// NewGuard creates a guard.
func NewGuard() *Guard {
	return &Guard{retry: make(chan struct{}, 1)}
}

// TryAcquire attempts to take the guard. On success it returns a
// release function that is safe to call exactly once from a defer, so
// the guard is released on every exit path including panics. On
// failure it records that a retry is wanted and returns ok == false.
func (g *Guard) TryAcquire() (release func(), ok bool) {
	if !g.busy.CompareAndSwap(false, true) {
		g.queued.Store(true)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.busy.Store(false)
			if g.queued.CompareAndSwap(true, false) {
				select {
				case g.retry <- struct{}{}:
				default:
				}
			}
		})
	}, true
}

// Retry signals once after a release for which a change arrived
// mid-build.
func (g *Guard) Retry() <-chan struct{} {
	return g.retry
}

// InFlight reports whether a build currently holds the guard.
func (g *Guard) InFlight() bool {
	return g.busy.Load()
}
