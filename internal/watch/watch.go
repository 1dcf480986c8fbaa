// Package watch re-indexes a directory of object files as they change,
// using fsnotify to observe the filesystem.
package watch

import (
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/orizon-lang/dwarfidx/internal/cliutil"
	"github.com/orizon-lang/dwarfidx/internal/dwarfindex"
)

// Watcher re-indexes a directory's object files on change. Index has no
// invalidate/remove operation (by design — see SPEC_FULL.md), so a change
// never mutates the live index in place: a full rebuild is performed and
// swapped in atomically behind Current.
type Watcher struct {
	dir     string
	glob    string
	logger  *cliutil.Logger
	current atomic.Pointer[dwarfindex.Index]
	fsw     *fsnotify.Watcher
}

// New creates a Watcher over dir, matching files against glob (e.g. "*.o").
func New(dir, glob string, logger *cliutil.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(dir); err != nil {
		fsw.Close()

		return nil, err
	}

	return &Watcher{dir: dir, glob: glob, logger: logger, fsw: fsw}, nil
}

// Current returns the most recently built Index, or nil before the first
// build completes.
func (w *Watcher) Current() *dwarfindex.Index {
	return w.current.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Rebuild performs one full rescan-and-reindex of the watched directory.
func (w *Watcher) Rebuild() error {
	matches, err := filepath.Glob(filepath.Join(w.dir, w.glob))
	if err != nil {
		return err
	}

	ix := dwarfindex.New(nil)

	var loaded []string

	for _, m := range matches {
		if err := ix.Add(m); err != nil {
			if w.logger != nil {
				w.logger.Warn("skipping %s: %v", m, err)
			}

			continue
		}

		loaded = append(loaded, m)
	}

	w.current.Store(ix)

	if w.logger != nil {
		w.logger.Info("reindexed %d file(s) from %s", len(loaded), w.dir)
	}

	return nil
}

// Run rebuilds once immediately, then again on every relevant fsnotify
// event, until the watcher is closed or done is closed.
func (w *Watcher) Run(done <-chan struct{}) error {
	if err := w.Rebuild(); err != nil {
		return err
	}

	for {
		select {
		case <-done:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			matched, err := filepath.Match(filepath.Join(w.dir, w.glob), ev.Name)
			if err != nil || !matched {
				continue
			}

			if err := w.Rebuild(); err != nil && w.logger != nil {
				w.logger.Error("rebuild failed: %v", err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			if w.logger != nil {
				w.logger.Error("watch error: %v", err)
			}
		}
	}
}
