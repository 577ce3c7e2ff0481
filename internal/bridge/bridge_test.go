package bridge

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundbench/soundbench/pkg/param"
)

func specs(ids ...string) []param.Spec {
	out := make([]param.Spec, len(ids))
	for i, id := range ids {
		out[i] = param.New(id, id).Range(0, 10).Default(5).Build()
	}
	return out
}

func TestSetGet(t *testing.T) {
	b := New(specs("gain", "mix"))

	v, ok := b.Get("gain")
	require.True(t, ok)
	assert.Equal(t, 5.0, v, "unset parameter starts at its default")

	require.True(t, b.Set("gain", 7.5))
	v, ok = b.Get("gain")
	require.True(t, ok)
	assert.Equal(t, 7.5, v)

	assert.False(t, b.Set("nope", 1), "unknown id rejected")
	_, ok = b.Get("nope")
	assert.False(t, ok)
}

func TestReadInto(t *testing.T) {
	b := New(specs("a", "b", "c"))
	b.Set("b", 9)

	dst := make([]float64, 8)
	n := b.ReadInto(dst)
	require.Equal(t, 3, n)
	assert.Equal(t, []float64{5, 9, 5}, dst[:3])

	short := make([]float64, 2)
	assert.Equal(t, 2, b.ReadInto(short), "short destination truncates")
}

func TestRemapCarriesMatchingIDs(t *testing.T) {
	b := New(specs("gain", "mix"))
	b.Set("gain", 8)
	b.Set("mix", 2)

	next := []param.Spec{
		param.New("gain", "Gain").Range(0, 10).Default(5).Build(),
		param.New("drive", "Drive").Range(0, 1).Default(0.5).Build(),
	}
	b.Remap(next)

	require.Equal(t, 2, b.Len())

	v, ok := b.Get("gain")
	require.True(t, ok)
	assert.Equal(t, 8.0, v, "matching id carries its value over")

	v, ok = b.Get("drive")
	require.True(t, ok)
	assert.Equal(t, 0.5, v, "new id starts at default")

	_, ok = b.Get("mix")
	assert.False(t, ok, "removed id is gone")
}

func TestRemapClampsCarriedValue(t *testing.T) {
	b := New(specs("gain"))
	b.Set("gain", 10)

	b.Remap([]param.Spec{param.New("gain", "Gain").Range(0, 4).Default(1).Build()})
	v, ok := b.Get("gain")
	require.True(t, ok)
	assert.Equal(t, 4.0, v, "carried value clamps to the new range")
}

func TestNoTornReads(t *testing.T) {
	// Writers store one of two distinctive bit patterns; a reader must
	// only ever observe one of them in full, never a mix of halves.
	b := New([]param.Spec{param.New("x", "X").Range(-1e300, 1e300).Build()})

	valA := math.Float64frombits(0xAAAAAAAAAAAAAAA)
	valB := math.Float64frombits(0x55555555555555)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				b.Set("x", valA)
			} else {
				b.Set("x", valB)
			}
		}
	}()

	var bad int
	dst := make([]float64, 1)
	for i := 0; i < 100000; i++ {
		b.ReadInto(dst)
		got := math.Float64bits(dst[0])
		if got != math.Float64bits(valA) && got != math.Float64bits(valB) && got != math.Float64bits(0) {
			bad++
		}
	}

	close(stop)
	wg.Wait()
	assert.Zero(t, bad, "observed torn parameter values")
}

func TestConcurrentRemapAndRead(t *testing.T) {
	b := New(specs("a", "b"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				b.Remap(specs("a", "b"))
			} else {
				b.Remap(specs("a", "b", "c"))
			}
		}
	}()
	go func() {
		defer wg.Done()
		dst := make([]float64, 8)
		for i := 0; i < 1000; i++ {
			n := b.ReadInto(dst)
			if n != 2 && n != 3 {
				t.Errorf("read saw partial table of %d cells", n)
				return
			}
		}
	}()
	wg.Wait()
}
