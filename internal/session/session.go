// Package session wires the whole development loop into one long-lived
// coordinator: file watcher, rebuild pipeline, module loader, parameter
// bridge, RPC server, and the optional audio subsystem.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soundbench/soundbench/internal/audio"
	"github.com/soundbench/soundbench/internal/bridge"
	"github.com/soundbench/soundbench/internal/config"
	"github.com/soundbench/soundbench/internal/loader"
	"github.com/soundbench/soundbench/internal/printer"
	"github.com/soundbench/soundbench/internal/rebuild"
	"github.com/soundbench/soundbench/internal/rpc"
	"github.com/soundbench/soundbench/internal/watcher"
	"github.com/soundbench/soundbench/pkg/chain"
	"github.com/soundbench/soundbench/pkg/param"
)

// spectrumFFTSize is the analyzer resolution for the control surface.
const spectrumFFTSize = 2048

// SidecarWriter persists the latest flattened spec list after each
// successful reload, for consumption by unrelated tooling.
type SidecarWriter func(specs []param.Spec) error

// Option customizes session construction.
type Option func(*Session)

// WithSidecarWriter replaces the default cache-file writer.
func WithSidecarWriter(w SidecarWriter) Option {
	return func(s *Session) { s.sidecar = w }
}

// WithInitialGraph installs an in-process processor graph as the first
// module generation, so the session is audible before the first
// rebuild completes. The graph is swapped out like any loaded module.
func WithInitialGraph(g *chain.Graph) Option {
	return func(s *Session) { s.initial = g }
}

// Session is the DevSession aggregate: one running development loop
// over one project. Construct with New, drive with Run.
type Session struct {
	log *zap.Logger
	cfg *config.Config

	ld     *loader.Loader
	br     *bridge.Bridge
	server *rpc.Server
	watch  *watcher.Watcher
	pipe   *rebuild.Pipeline

	engine   *audio.Engine
	analyzer *audio.Analyzer
	device   audio.Device

	initial *chain.Graph
	sidecar SidecarWriter

	mu    sync.RWMutex
	specs []param.Spec
	index map[string]param.Spec
}

// New builds a session from config. Watch-path or bind failures are
// startup errors; nothing is running until Run.
func New(log *zap.Logger, cfg *config.Config, opts ...Option) (*Session, error) {
	s := &Session{
		log:   log.Named("session"),
		cfg:   cfg,
		ld:    loader.New(log),
		index: make(map[string]param.Spec),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sidecar == nil {
		s.sidecar = fileSidecar(filepath.Join(cfg.CacheDir, "parameters.json"))
	}

	if s.initial != nil {
		specs := s.initial.ParamSpecs()
		s.specs = specs
		for _, spec := range specs {
			s.index[spec.ID] = spec
		}
	}
	s.br = bridge.New(s.specs)

	var err error
	s.watch, err = watcher.New(log, cfg.Watch.Paths,
		watcher.WithDebounce(cfg.Watch.Debounce.Std()),
		watcher.WithExtensions(cfg.Watch.Extensions...))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s.server = rpc.NewServer(log, s, rpc.Config{
		Addr:             cfg.Server.Listen,
		MeterInterval:    cfg.Server.MeterInterval.Std(),
		SpectrumInterval: cfg.Server.SpectrumInterval.Std(),
	})

	s.pipe = rebuild.New(rebuild.Config{
		BuildCommand:   cfg.Build.Command,
		BuildTimeout:   cfg.Build.Timeout.Std(),
		ExtractCommand: cfg.Build.ExtractCommand,
		ExtractTimeout: cfg.Build.ExtractTimeout.Std(),
		Artifact:       cfg.Build.Artifact,
		CacheDir:       cfg.CacheDir,
		WorkDir:        cfg.Dir,
	}, log, s.ld, s, s)

	if cfg.Audio.Enabled {
		if err := s.setupAudio(); err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
	}

	return s, nil
}

func (s *Session) setupAudio() error {
	a := s.cfg.Audio
	switch a.Device {
	case "wav":
		s.device = audio.NewWAVDevice(s.log, a.WavPath, a.SampleRate, a.BufferFrames, a.Channels)
	default:
		s.device = audio.NewNullDevice(s.log, a.SampleRate, a.BufferFrames, a.Channels)
	}

	s.engine = audio.NewEngine(s.log, s.ld, s.br, audio.EngineConfig{
		Source:  a.Source,
		SineHz:  a.SineHz,
		SineAmp: a.SineAmp,
	})
	s.engine.Prepare(a.SampleRate, a.BufferFrames, a.Channels)

	var err error
	s.analyzer, err = audio.NewAnalyzer(s.engine, a.SampleRate, spectrumFFTSize)
	if err != nil {
		return err
	}
	return nil
}

// Addr reports the RPC server's bound address. Valid once Run has
// started the server.
func (s *Session) Addr() string { return s.server.Addr() }

// Run starts every subsystem and blocks until ctx is cancelled or a
// startup-fatal error occurs. Audio device failures stop the stream but
// keep the rest of the session available for diagnosis.
func (s *Session) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("session: cache dir: %w", err)
	}
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if s.initial != nil {
		h := loader.NewHandle(s.initial)
		a := s.cfg.Audio
		if s.engine != nil {
			s.initial.Prepare(a.SampleRate, a.BufferFrames, a.Channels)
		}
		s.ld.Swap(h)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.server.Serve(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error { return s.watch.Run(ctx) })
	g.Go(func() error { return s.pipe.Run(ctx, s.watch.Changes()) })
	g.Go(func() error { return s.ld.RunReaper(ctx) })

	if s.device != nil {
		g.Go(func() error {
			err := s.device.Run(ctx, s.engine.Render)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				// AudioDeviceError: the stream stops, the session
				// stays up so the author can diagnose over RPC.
				s.log.Error("audio device stopped", zap.Error(err))
			}
			return nil
		})
	}

	if s.initial == nil {
		// No built-in graph: build the project once at startup so the
		// session comes up with the author's module loaded.
		g.Go(func() error {
			if err := s.pipe.Rebuild(ctx); err != nil {
				s.log.Warn("initial build failed", zap.Error(err))
			}
			return nil
		})
	}

	s.log.Info("session running", zap.String("addr", s.server.Addr()))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ApplyReload is called by the rebuild pipeline with a staged, contract
// validated handle. It publishes the new instance, remaps the bridge,
// refreshes the logical spec list, persists the sidecar cache, and
// pushes a parametersChanged notification.
func (s *Session) ApplyReload(h *loader.Handle, specs []param.Spec) error {
	if s.engine != nil {
		// The render scratch is sized once; a module past the ceiling
		// would receive a short value slice and may index out of it.
		// Reject here so the previous module keeps running.
		if len(specs) > audio.MaxParams {
			return fmt.Errorf("module exposes %d parameters, render ceiling is %d", len(specs), audio.MaxParams)
		}
		a := s.cfg.Audio
		h.Instance().Prepare(a.SampleRate, a.BufferFrames, a.Channels)
	}

	s.mu.Lock()
	old := s.index

	s.ld.Swap(h)
	s.br.Remap(specs)

	// Carried enum values only survive an unchanged label set;
	// anything else re-indexes the variants, so fall back to default.
	for _, spec := range specs {
		if spec.Range.Kind != param.Enumerated {
			continue
		}
		prev, ok := old[spec.ID]
		if ok && !sameLabels(prev.Range.Labels, spec.Range.Labels) {
			s.br.Set(spec.ID, spec.Default)
		}
	}

	s.specs = specs
	s.index = make(map[string]param.Spec, len(specs))
	for _, spec := range specs {
		s.index[spec.ID] = spec
	}
	s.mu.Unlock()

	if err := s.sidecar(specs); err != nil {
		s.log.Warn("sidecar cache write failed", zap.Error(err))
	}

	s.server.Broadcast(rpc.NotifyParametersChanged,
		map[string]interface{}{"parameters": s.ListParameters()})
	return nil
}

// BuildStarted implements rebuild.Notifier.
func (s *Session) BuildStarted(id string) {
	printer.Step("rebuilding\n")
	s.server.Broadcast(rpc.NotifyBuildStarted, map[string]string{"build": id})
}

// BuildSucceeded implements rebuild.Notifier.
func (s *Session) BuildSucceeded(id string, params int) {
	printer.Success("reloaded (%d parameters)\n", params)
	s.server.Broadcast(rpc.NotifyBuildSucceeded,
		map[string]interface{}{"build": id, "parameters": params})
}

// BuildFailed implements rebuild.Notifier. Diagnostics text rides along
// so the control surface can show compiler output; the console gets the
// same text verbatim.
func (s *Session) BuildFailed(id, stage, detail string) {
	printer.BuildFailure(stage, detail)
	s.server.Broadcast(rpc.NotifyBuildFailed,
		map[string]string{"build": id, "stage": stage, "detail": detail})
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fileSidecar returns the default sidecar writer: the spec list as JSON
// at path, written atomically via rename.
func fileSidecar(path string) SidecarWriter {
	return func(specs []param.Spec) error {
		data, err := json.MarshalIndent(specs, "", "  ")
		if err != nil {
			return err
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, path)
	}
}
