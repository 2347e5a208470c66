package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"clusterwatch/pkg/logging"
)

// directorySource produces one raw notification per filesystem event under
// the watched directory and its subtree.
//
// It is a two-state machine. In the watching state it holds exactly one
// fsnotify watcher. When the directory does not exist (at startup or after
// being deleted) it releases the watcher and polls for the directory on a
// fixed interval, re-arming the native watch once it reappears. A native
// failure unrelated to absence terminates the source through fail after its
// own resources are released.
type directorySource struct {
	dir          string
	pollInterval time.Duration

	// notify delivers one raw tick. Called from the source goroutine.
	notify func()

	// fail reports a fatal source error. Called at most once.
	fail func(error)
}

// loopResult tells run why the native watch loop returned.
type loopResult int

const (
	loopCtxDone loopResult = iota
	loopDirGone
	loopFatal
)

// start arms the native watch synchronously, before any goroutine runs, so
// filesystem events arriving right after start are already covered. A nil
// watcher with a nil error means the directory does not exist yet and run
// begins in the polling state.
func (s *directorySource) start() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := s.armWatches(w); err != nil {
		w.Close()
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// run drives the state machine until ctx is done or a fatal error occurs.
// It takes over the watcher armed by start and owns it for the lifetime of
// each watching state.
func (s *directorySource) run(ctx context.Context, w *fsnotify.Watcher) {
	resumed := false
	for {
		if w == nil {
			logging.Debug("WatchSource", "Directory %s absent, polling every %v", s.dir, s.pollInterval)
			if !s.poll(ctx) {
				return
			}
			resumed = true
			var err error
			if w, err = s.start(); err != nil {
				s.fail(err)
				return
			}
			// The directory can vanish again between the poll and the arm;
			// a nil watcher sends the loop back into polling.
			continue
		}

		logging.Debug("WatchSource", "Watching %s", s.dir)
		if resumed {
			// One tick after re-arming so the next detection cycle covers
			// everything that happened while the watch was down.
			resumed = false
			s.notify()
		}

		result, loopErr := s.watchLoop(ctx, w)
		w.Close()
		w = nil

		switch result {
		case loopCtxDone:
			return
		case loopFatal:
			s.fail(loopErr)
			return
		}
		// loopDirGone: the next iteration drops into the polling state.
	}
}

// armWatches adds the directory and every existing subdirectory to the
// watcher so the whole subtree is covered.
func (s *directorySource) armWatches(w *fsnotify.Watcher) error {
	if err := w.Add(s.dir); err != nil {
		return err
	}

	return filepath.WalkDir(s.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.IsDir() || path == s.dir {
			// Entries racing with deletion are picked up by events later.
			return nil
		}
		if err := w.Add(path); err != nil {
			logging.Warn("WatchSource", "Failed to watch subdirectory %s: %v", path, err)
		}
		return nil
	})
}

// watchLoop forwards native events as raw ticks until the context is done,
// the directory disappears, or the watcher fails.
func (s *directorySource) watchLoop(ctx context.Context, w *fsnotify.Watcher) (loopResult, error) {
	for {
		select {
		case <-ctx.Done():
			return loopCtxDone, nil

		case event, ok := <-w.Events:
			if !ok {
				return loopDirGone, nil
			}
			s.notify()

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.Add(event.Name); err != nil {
						logging.Warn("WatchSource", "Failed to watch new subdirectory %s: %v", event.Name, err)
					}
				}
			}

			if event.Name == s.dir && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return loopDirGone, nil
			}

		case err, ok := <-w.Errors:
			if !ok {
				return loopDirGone, nil
			}
			if errors.Is(err, fs.ErrNotExist) {
				s.notify()
				return loopDirGone, nil
			}
			return loopFatal, err
		}
	}
}

// poll checks for the directory on the poll interval. It returns true once
// the directory exists again, or false when ctx finished first.
func (s *directorySource) poll(ctx context.Context) bool {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if info, err := os.Stat(s.dir); err == nil && info.IsDir() {
				logging.Debug("WatchSource", "Directory %s reappeared, resuming native watch", s.dir)
				return true
			}
		}
	}
}
