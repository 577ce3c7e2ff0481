package dsp

import (
	"math"
	"testing"
)

func stereo(frames int) [][]float32 {
	return [][]float32{make([]float32, frames), make([]float32, frames)}
}

func constant(buf [][]float32, v float32) {
	for ch := range buf {
		for i := range buf[ch] {
			buf[ch][i] = v
		}
	}
}

func TestGain(t *testing.T) {
	t.Run("UnityByDefault", func(t *testing.T) {
		g := NewGain()
		g.Prepare(48000, 64, 2)

		in := stereo(64)
		out := stereo(64)
		constant(in, 0.5)

		g.Process(in, out, 64, []float64{0})
		if math.Abs(float64(out[0][63]-0.5)) > 1e-3 {
			t.Errorf("0 dB should be unity, got %f", out[0][63])
		}
	})

	t.Run("RampsTowardTarget", func(t *testing.T) {
		g := NewGain()
		g.Prepare(48000, 4096, 1)

		in := [][]float32{make([]float32, 4096)}
		out := [][]float32{make([]float32, 4096)}
		constant(in, 1)

		// +6 dB is ~1.995x; after a long buffer the ramp has settled.
		g.Process(in, out, 4096, []float64{6})
		if got := float64(out[0][4095]); math.Abs(got-1.995) > 0.01 {
			t.Errorf("expected ~1.995 after ramp, got %f", got)
		}
		// The first sample must not jump straight to the target.
		if got := float64(out[0][0]); got > 1.1 {
			t.Errorf("gain jumped without ramping: %f", got)
		}
	})
}

func TestDelay(t *testing.T) {
	d := NewDelay()
	d.Prepare(1000, 64, 1) // 1 kHz keeps delay sample counts small

	in := [][]float32{make([]float32, 64)}
	out := [][]float32{make([]float32, 64)}
	in[0][0] = 1

	// 10ms at 1 kHz = 10 samples, full wet, no feedback.
	d.Process(in, out, 64, []float64{10, 0, 1})

	if out[0][10] < 0.9 {
		t.Errorf("expected impulse delayed to sample 10, got %f", out[0][10])
	}
	for i := 1; i < 10; i++ {
		if out[0][i] != 0 {
			t.Errorf("sample %d should be silent before the delay tap, got %f", i, out[0][i])
		}
	}

	d.Reset()
	constant(out, 0)
	d.Process(in, out, 64, []float64{10, 0, 0})
	if out[0][0] != 1 {
		t.Errorf("dry mix should pass input, got %f", out[0][0])
	}
}

func TestFilter(t *testing.T) {
	t.Run("PassesDCAttenuatesNyquist", func(t *testing.T) {
		f := NewFilter()
		f.Prepare(48000, 512, 1)

		in := [][]float32{make([]float32, 512)}
		out := [][]float32{make([]float32, 512)}
		constant(in, 1)

		// 1 kHz cutoff: DC should come through at unity once settled.
		f.Process(in, out, 512, []float64{1000, 0.707})
		if got := float64(out[0][511]); math.Abs(got-1) > 0.01 {
			t.Errorf("DC should pass a lowpass at unity, got %f", got)
		}

		// Alternating +1/-1 is the Nyquist frequency; it must be crushed.
		f.Reset()
		for i := range in[0] {
			if i%2 == 0 {
				in[0][i] = 1
			} else {
				in[0][i] = -1
			}
		}
		f.Process(in, out, 512, []float64{1000, 0.707})
		if got := math.Abs(float64(out[0][511])); got > 0.01 {
			t.Errorf("Nyquist should be attenuated, got %f", got)
		}
	})

	t.Run("ResetClearsState", func(t *testing.T) {
		f := NewFilter()
		f.Prepare(48000, 64, 1)

		in := [][]float32{make([]float32, 64)}
		out := [][]float32{make([]float32, 64)}
		in[0][0] = 1
		f.Process(in, out, 64, []float64{200, 2})
		f.Reset()

		constant(in, 0)
		f.Process(in, out, 64, []float64{200, 2})
		for i := range out[0] {
			if out[0][i] != 0 {
				t.Fatalf("ringing after reset at sample %d: %f", i, out[0][i])
			}
		}
	})
}

func TestDrive(t *testing.T) {
	d := NewDrive()
	d.Prepare(48000, 64, 1)

	in := [][]float32{make([]float32, 64)}
	out := [][]float32{make([]float32, 64)}
	constant(in, 0.5)

	// High drive with normalization compresses a half-scale input
	// toward full scale.
	d.Process(in, out, 64, []float64{10, 1})
	if got := float64(out[0][0]); got < 0.9 || got > 1.01 {
		t.Errorf("expected saturated output near 1.0, got %f", got)
	}

	// Fully dry passes the input unchanged.
	d.Process(in, out, 64, []float64{10, 0})
	if out[0][0] != 0.5 {
		t.Errorf("dry mix should be identity, got %f", out[0][0])
	}
}
