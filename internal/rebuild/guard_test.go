package rebuild

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardSingleFlight(t *testing.T) {
	g := NewGuard()

	release, ok := g.TryAcquire()
	require.True(t, ok)
	assert.True(t, g.InFlight())

	_, ok = g.TryAcquire()
	assert.False(t, ok, "second acquire while held must fail")

	release()
	assert.False(t, g.InFlight())

	release2, ok := g.TryAcquire()
	require.True(t, ok, "guard reusable after release")
	release2()
}

func TestGuardReleaseIdempotent(t *testing.T) {
	g := NewGuard()
	release, ok := g.TryAcquire()
	require.True(t, ok)

	release()
	release() // second call is a no-op

	_, ok = g.TryAcquire()
	assert.True(t, ok)
}

func TestGuardQueuesOneRetry(t *testing.T) {
	g := NewGuard()
	release, ok := g.TryAcquire()
	require.True(t, ok)

	// Several changes during the build collapse to one retry.
	for i := 0; i < 5; i++ {
		_, ok := g.TryAcquire()
		require.False(t, ok)
	}

	select {
	case <-g.Retry():
		t.Fatal("retry must not fire before release")
	default:
	}

	release()

	select {
	case <-g.Retry():
	default:
		t.Fatal("queued retry missing after release")
	}
	select {
	case <-g.Retry():
		t.Fatal("more than one retry queued")
	default:
	}
}

func TestGuardNoRetryWithoutContention(t *testing.T) {
	g := NewGuard()
	release, ok := g.TryAcquire()
	require.True(t, ok)
	release()

	select {
	case <-g.Retry():
		t.Fatal("retry fired without a queued change")
	default:
	}
}

func TestGuardConcurrentAcquire(t *testing.T) {
	g := NewGuard()

	var wg sync.WaitGroup
	var acquired int64
	var mu sync.Mutex
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, ok := g.TryAcquire(); ok {
				mu.Lock()
				acquired++
				mu.Unlock()
				release()
			}
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, acquired, int64(1))
}
