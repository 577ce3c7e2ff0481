package rebuild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soundbench/soundbench/internal/loader"
	"github.com/soundbench/soundbench/pkg/param"
)

// Failure categories. Any of them aborts the pipeline and leaves the
// previously active module, bridge and parameter list untouched.
var (
	ErrBuildFailed   = errors.New("build failed")
	ErrExtractFailed = errors.New("parameter extraction failed")
	ErrReloadFailed  = errors.New("module reload failed")
)

// Config describes the external collaborators of one pipeline.
type Config struct {
	// BuildCommand is the external build tool invocation.
	BuildCommand []string
	// BuildTimeout bounds the build; a timeout is a build failure.
	BuildTimeout time.Duration

	// ExtractCommand is the parameter-extraction subprocess; the
	// module path is appended as the final argument. Running it out
	// of process isolates crashes in freshly built code.
	ExtractCommand []string
	// ExtractTimeout bounds extraction.
	ExtractTimeout time.Duration

	// Artifact is the module path the build tool produces.
	Artifact string
	// CacheDir receives a uniquely named copy of each artifact before
	// loading; the platform loader refuses to reopen a path whose
	// content changed.
	CacheDir string
	// WorkDir is the working directory for both subprocesses.
	WorkDir string
}

// Applier receives a validated reload: it performs the atomic swap,
// remaps the bridge and notifies clients. Implemented by the session.
type Applier interface {
	ApplyReload(h *loader.Handle, specs []param.Spec) error
}

// Notifier receives build lifecycle events for pushing to clients.
type Notifier interface {
	BuildStarted(id string)
	BuildSucceeded(id string, params int)
	BuildFailed(id, stage, detail string)
}

// session tracks one in-flight build attempt. It exists only between
// guard acquisition and release.
type session struct {
	id         string
	generation uint64
	artifact   string
	specs      []param.Spec
}

// Pipeline runs Idle -> Building -> Extracting -> Reloading ->
// Notifying -> Idle, dropping to Idle on any failure.
type Pipeline struct {
	cfg      Config
	log      *zap.Logger
	guard    *Guard
	applier  Applier
	notifier Notifier

	// load is the reload step; a seam over loader.Load for tests.
	load func(path string) (*loader.Handle, error)

	generation atomic.Uint64
}

// New creates a pipeline around the given loader.
func New(cfg Config, log *zap.Logger, ld *loader.Loader, applier Applier, notifier Notifier) *Pipeline {
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = 2 * time.Minute
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 30 * time.Second
	}
	return &Pipeline{
		cfg:      cfg,
		log:      log.Named("rebuild"),
		guard:    NewGuard(),
		applier:  applier,
		notifier: notifier,
		load:     ld.Load,
	}
}

// Guard exposes the build guard, mainly for introspection and tests.
func (p *Pipeline) Guard() *Guard { return p.guard }

// Run consumes debounced change signals until ctx is done. A signal
// arriving while a build is in flight collapses into one retry.
func (p *Pipeline) Run(ctx context.Context, changes <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
		case <-p.guard.Retry():
		}
		if err := p.Rebuild(ctx); err != nil {
			// Failures are reported and isolated; the session
			// keeps running with the previous module.
			p.log.Warn("rebuild failed", zap.Error(err))
		}
	}
}

// Rebuild executes one guarded pipeline pass. When a build is already
// in flight the call is a no-op (the guard queues one retry).
func (p *Pipeline) Rebuild(ctx context.Context) error {
	release, ok := p.guard.TryAcquire()
	if !ok {
		p.log.Debug("build in flight, change queued")
		return nil
	}
	defer release()

	s := &session{
		id:         uuid.NewString()[:8],
		generation: p.generation.Add(1),
	}
	p.log.Info("rebuild started", zap.String("build", s.id), zap.Uint64("generation", s.generation))
	p.notifier.BuildStarted(s.id)
	start := time.Now()

	if err := p.build(ctx, s); err != nil {
		p.notifier.BuildFailed(s.id, "build", err.Error())
		return fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	if err := p.extract(ctx, s); err != nil {
		p.notifier.BuildFailed(s.id, "extract", err.Error())
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}

	h, err := p.load(s.artifact)
	if err != nil {
		p.notifier.BuildFailed(s.id, "reload", err.Error())
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}
	if got := len(h.Instance().ParamSpecs()); got != len(s.specs) {
		err := fmt.Errorf("module exposes %d parameters, extraction reported %d", got, len(s.specs))
		p.notifier.BuildFailed(s.id, "reload", err.Error())
		_ = h.Instance().Close()
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}

	if err := p.applier.ApplyReload(h, s.specs); err != nil {
		p.notifier.BuildFailed(s.id, "reload", err.Error())
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}

	p.notifier.BuildSucceeded(s.id, len(s.specs))
	p.log.Info("rebuild completed",
		zap.String("build", s.id),
		zap.Int("params", len(s.specs)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// build invokes the external build tool and stages a uniquely named
// copy of the artifact for loading.
func (p *Pipeline) build(ctx context.Context, s *session) error {
	if len(p.cfg.BuildCommand) == 0 {
		return errors.New("no build command configured")
	}

	bctx, cancel := context.WithTimeout(ctx, p.cfg.BuildTimeout)
	defer cancel()

	cmd := exec.CommandContext(bctx, p.cfg.BuildCommand[0], p.cfg.BuildCommand[1:]...)
	cmd.Dir = p.cfg.WorkDir
	out, err := cmd.CombinedOutput()
	if bctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("build timed out after %s", p.cfg.BuildTimeout)
	}
	if err != nil {
		return fmt.Errorf("%v\n%s", err, out)
	}

	artifact := p.cfg.Artifact
	if !filepath.IsAbs(artifact) {
		artifact = filepath.Join(p.cfg.WorkDir, artifact)
	}
	if _, err := os.Stat(artifact); err != nil {
		return fmt.Errorf("build produced no artifact: %w", err)
	}

	staged := filepath.Join(p.cfg.CacheDir,
		fmt.Sprintf("module-%d-%s%s", s.generation, s.id, filepath.Ext(artifact)))
	if err := copyFile(staged, artifact); err != nil {
		return fmt.Errorf("stage artifact: %w", err)
	}
	s.artifact = staged
	return nil
}

// extract runs the parameter-extraction subprocess against the staged
// artifact and parses the spec list from its stdout.
func (p *Pipeline) extract(ctx context.Context, s *session) error {
	if len(p.cfg.ExtractCommand) == 0 {
		return errors.New("no extract command configured")
	}

	ectx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	args := append(append([]string{}, p.cfg.ExtractCommand[1:]...), s.artifact)
	cmd := exec.CommandContext(ectx, p.cfg.ExtractCommand[0], args...)
	cmd.Dir = p.cfg.WorkDir
	out, err := cmd.Output()
	if ectx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("extraction timed out after %s", p.cfg.ExtractTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%v\n%s", err, exitErr.Stderr)
		}
		return err
	}

	var specs []param.Spec
	if err := json.Unmarshal(out, &specs); err != nil {
		return fmt.Errorf("parse extracted specs: %w", err)
	}
	if err := param.ValidateList(specs); err != nil {
		return fmt.Errorf("extracted specs invalid: %w", err)
	}
	s.specs = specs
	return nil
}

func copyFile(dst, src string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
