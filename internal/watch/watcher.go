// SPDX-License-Identifier: MPL-2.0

// Package watch re-runs packaging when the package folder changes.
//
// Events are coalesced over a debounce window; the callback then runs once
// with every path that changed. The callback runs on the event loop, so a
// slow packaging run delays the next one instead of overlapping it.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Config.Debounce is unset.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrInvalidPattern is returned for an ignore pattern doublestar rejects.
	ErrInvalidPattern = errors.New("invalid ignore pattern")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("watcher already running")

	defaultIgnores = []string{
		".git",
		".git/**",
		"node_modules",
		"node_modules/**",
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/.DS_Store",
	}
)

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// BaseDir is the package folder. Empty means the working directory.
		BaseDir string
		// Ignore adds doublestar patterns, relative to BaseDir, to the
		// built-in ignores (VCS metadata, node_modules, editor swap files).
		Ignore []string
		// Debounce is the quiet period after the last event.
		Debounce time.Duration
		// OnChange receives the changed paths relative to BaseDir, sorted.
		OnChange func(ctx context.Context, changed []string) error
		Logger   *log.Logger
	}

	// Watcher monitors a directory tree. Run may be called once.
	Watcher struct {
		fsw      *fsnotify.Watcher
		baseDir  string
		ignores  []string
		debounce time.Duration
		onChange func(ctx context.Context, changed []string) error
		logger   *log.Logger
		started  atomic.Bool
	}
)

// IgnoreDir returns the patterns excluding dir and everything below it, or
// nil when dir lies outside baseDir.
func IgnoreDir(baseDir, dir string) []string {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil
	}
	rel, err := filepath.Rel(absBase, absDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	rel = filepath.ToSlash(rel)
	return []string{rel, rel + "/**"}
}

// New creates a Watcher and registers every non-ignored directory below
// BaseDir.
func New(cfg Config) (*Watcher, error) {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		baseDir = "."
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	for _, pat := range cfg.Ignore {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("watch: %w %q", ErrInvalidPattern, pat)
		}
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		baseDir:  absBase,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: debounce,
		onChange: cfg.OnChange,
		logger:   logger,
	}

	if err := w.addTree(absBase); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logger.Warn("close watcher after init failure", "err", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// Close releases a watcher that will not be run. It is a no-op once Run
// has started, since Run closes the watcher when it returns.
func (w *Watcher) Close() error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("watch: close: %w", err)
	}
	return nil
}

// Run blocks until ctx is cancelled. It returns nil on cancellation and an
// error when the underlying watcher breaks. Callback errors are logged and
// watching continues.
func (w *Watcher) Run(ctx context.Context) (err error) {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watch: %w", ErrAlreadyRunning)
	}
	defer func() {
		if closeErr := w.fsw.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("watch: close: %w", closeErr)
		}
	}()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			rel, ok := w.relevant(evt)
			if !ok {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddTree(evt.Name)
			}
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for rel := range pending {
				changed = append(changed, rel)
			}
			clear(pending)
			slices.Sort(changed)

			w.logger.Info("change detected", "paths", len(changed), "first", changed[0])
			if w.onChange != nil {
				if cbErr := w.onChange(ctx, changed); cbErr != nil && ctx.Err() == nil {
					w.logger.Error("rerun failed", "err", cbErr)
				}
			}

		case werr, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatalFsnotifyError(werr) {
				return fmt.Errorf("watch: fatal watcher error: %w", werr)
			}
			w.logger.Warn("watcher error", "err", werr)
		}
	}
}

// relevant maps an event to its BaseDir-relative path; chmod-only events and
// ignored paths are dropped.
func (w *Watcher) relevant(evt fsnotify.Event) (string, bool) {
	if evt.Op == fsnotify.Chmod {
		return "", false
	}
	rel, err := filepath.Rel(w.baseDir, evt.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if w.ignored(rel) {
		return "", false
	}
	return rel, true
}

func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("skipping unreadable path", "path", path, "err", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.baseDir, path)
		if err != nil {
			return nil //nolint:nilerr
		}
		if rel != "." && w.ignored(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

// maybeAddTree extends the watch to a directory created after startup.
func (w *Watcher) maybeAddTree(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("cannot watch new directory", "path", path, "err", err)
	}
}

func (w *Watcher) ignored(rel string) bool {
	for _, pat := range w.ignores {
		if matched, err := doublestar.Match(pat, rel); err == nil && matched {
			return true
		}
	}
	return false
}
