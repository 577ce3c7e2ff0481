// Package watcher observes a project source tree and coalesces bursts
// of filesystem events into single rebuild signals.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the coalescing window applied when none is
// configured.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches directories recursively and emits one debounced
// change signal per burst of raw events.
type Watcher struct {
	fs         *fsnotify.Watcher
	log        *zap.Logger
	debounce   time.Duration
	extensions map[string]struct{}
	changes    chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtensions restricts triggering events to paths with one of the
// given extensions (e.g. ".go"). Empty means every file counts.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			w.extensions[e] = struct{}{}
		}
	}
}

// New establishes recursive watches over roots. A missing directory or
// a failure to establish a watch is fatal here, per startup policy;
// runtime failures merely degrade.
func New(log *zap.Logger, roots []string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}

	w := &Watcher{
		fs:       fsw,
		log:      log.Named("watcher"),
		debounce: DefaultDebounce,
		changes:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watch path %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path %s: not a directory", root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Changes returns the debounced signal channel. The channel has a
// one-slot buffer: a burst in flight collapses into at most one pending
// signal.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run pumps raw filesystem events until ctx is done. Bursts arriving
// within the debounce window emit a single signal once the window
// closes. Runtime errors are logged and watching continues; a closed
// event stream stops watching without failing the session.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	loggedErr := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				w.log.Warn("event stream closed, no longer watching")
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("source change", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))

			// New directories join the watch so edits under them
			// keep triggering. Best effort at runtime.
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fs.Add(ev.Name); err != nil && !loggedErr {
						w.log.Warn("cannot watch new directory", zap.String("path", ev.Name), zap.Error(err))
						loggedErr = true
					}
				}
			}

			if !pending {
				pending = true
			} else if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			pending = false
			select {
			case w.changes <- struct{}{}:
			default:
				// A signal is already queued; the burst collapses
				// into it.
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if !loggedErr {
				w.log.Warn("watch degraded", zap.Error(err))
				loggedErr = true
			}
		}
	}
}

// relevant filters events down to content changes of interesting files.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		return true
	}
	_, ok := w.extensions[filepath.Ext(ev.Name)]
	return ok
}
