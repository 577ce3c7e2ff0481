// Package audio owns the real-time render path: a device pumps the
// callback once per buffer period, the engine drains the parameter
// bridge into the active module's process call, and metering taps the
// output for the control surface.
package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	wav "github.com/youpy/go-wav"
	"go.uber.org/zap"
)

// RenderFunc fills out with frames samples per channel. Implementations
// must be real-time safe: no allocation, locking, or blocking I/O.
type RenderFunc func(out [][]float32, frames int)

// Device drives a RenderFunc at a fixed buffer cadence. Run blocks
// until ctx is cancelled or the device fails.
type Device interface {
	Run(ctx context.Context, render RenderFunc) error
	SampleRate() float64
	BufferFrames() int
	Channels() int
}

// NullDevice pumps the callback on a wall-clock timer and discards the
// output. It keeps the whole hot-reload loop exercisable on machines
// with no audio hardware, and is the default device in headless runs.
type NullDevice struct {
	log        *zap.Logger
	sampleRate float64
	frames     int
	channels   int
}

// NewNullDevice returns a discard device with the given format.
func NewNullDevice(log *zap.Logger, sampleRate float64, frames, channels int) *NullDevice {
	return &NullDevice{
		log:        log.Named("audio.null"),
		sampleRate: sampleRate,
		frames:     frames,
		channels:   channels,
	}
}

func (d *NullDevice) SampleRate() float64 { return d.sampleRate }
func (d *NullDevice) BufferFrames() int   { return d.frames }
func (d *NullDevice) Channels() int       { return d.channels }

func (d *NullDevice) Run(ctx context.Context, render RenderFunc) error {
	out := allocChannels(d.channels, d.frames)
	period := time.Duration(float64(d.frames) / d.sampleRate * float64(time.Second))

	d.log.Info("running",
		zap.Float64("sampleRate", d.sampleRate),
		zap.Int("bufferFrames", d.frames),
		zap.Duration("period", period))

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			render(out, d.frames)
		}
	}
}

// WAVDevice renders at the same wall-clock cadence as a live device but
// persists the output to a WAV file on shutdown. Samples accumulate in
// memory because the container header needs the final count.
type WAVDevice struct {
	log        *zap.Logger
	path       string
	sampleRate float64
	frames     int
	channels   int

	samples []wav.Sample
}

// NewWAVDevice returns a render-to-file device writing 16-bit PCM to
// path when its Run loop ends.
func NewWAVDevice(log *zap.Logger, path string, sampleRate float64, frames, channels int) *WAVDevice {
	return &WAVDevice{
		log:        log.Named("audio.wav"),
		path:       path,
		sampleRate: sampleRate,
		frames:     frames,
		channels:   channels,
	}
}

func (d *WAVDevice) SampleRate() float64 { return d.sampleRate }
func (d *WAVDevice) BufferFrames() int   { return d.frames }
func (d *WAVDevice) Channels() int       { return d.channels }

func (d *WAVDevice) Run(ctx context.Context, render RenderFunc) error {
	out := allocChannels(d.channels, d.frames)
	period := time.Duration(float64(d.frames) / d.sampleRate * float64(time.Second))

	d.log.Info("rendering", zap.String("path", d.path))

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := d.flush(); err != nil {
				d.log.Error("flush failed", zap.Error(err))
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			render(out, d.frames)
			d.append(out, d.frames)
		}
	}
}

func (d *WAVDevice) append(out [][]float32, frames int) {
	for i := 0; i < frames; i++ {
		var s wav.Sample
		s.Values[0] = pcm16(out[0][i])
		if d.channels > 1 {
			s.Values[1] = pcm16(out[1][i])
		}
		d.samples = append(d.samples, s)
	}
}

func (d *WAVDevice) flush() error {
	f, err := os.Create(d.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", d.path, err)
	}
	defer f.Close()

	w := wav.NewWriter(f, uint32(len(d.samples)), uint16(d.channels), uint32(d.sampleRate), 16)
	if err := w.WriteSamples(d.samples); err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}

	d.log.Info("rendered",
		zap.String("path", d.path),
		zap.Int("samples", len(d.samples)),
		zap.Float64("seconds", float64(len(d.samples))/d.sampleRate))
	return nil
}

func pcm16(x float32) int {
	v := math.Round(float64(x) * 32767)
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int(v)
}

func allocChannels(channels, frames int) [][]float32 {
	bufs := make([][]float32, channels)
	for i := range bufs {
		bufs[i] = make([]float32, frames)
	}
	return bufs
}
