package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"csync/internal/csync"
	csfs "csync/internal/fs"
)

// Watcher reports bursts of filesystem activity under a content root.
// fsnotify is not recursive, so every non-ignored directory is added on
// start and new directories are added as they appear.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	ignore   *csfs.IgnoreMatcher
	debounce time.Duration
	logger   csync.Logger
}

// NewWatcher starts watching root and its subdirectories.
func NewWatcher(root string, ignore *csfs.IgnoreMatcher, debounce time.Duration, logger csync.Logger) (*Watcher, error) {
	if debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive, got %s", debounce)
	}
	if ignore == nil {
		ignore = csfs.NewIgnoreMatcher(csfs.DefaultIgnorePatterns)
	}
	if logger == nil {
		logger = csync.NewNopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		root:     filepath.Clean(root),
		ignore:   ignore,
		debounce: debounce,
		logger:   logger,
	}
	if err := w.addTree(w.root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.rel(p); rel != "" && w.ignore.MatchDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		w.logger.Debug("watching directory", "path", p)
		return nil
	})
}

func (w *Watcher) rel(p string) string {
	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == "." {
		return ""
	}
	return rel
}

// relevant reports whether ev should trigger a sync, adding newly created
// directories to the watch list as a side effect.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	rel := w.rel(ev.Name)
	if rel == "" {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if w.ignore.MatchDir(rel) {
				return false
			}
			if err := w.addTree(ev.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return true
		}
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	return !w.ignore.Match(rel)
}

// Run forwards one signal to bursts for each debounced group of relevant
// events. Signals are dropped while an earlier one is still pending. Run
// returns nil when ctx is done.
func (w *Watcher) Run(ctx context.Context, bursts chan<- struct{}) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-fire:
			fire = nil
			select {
			case bursts <- struct{}{}:
			default:
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
