package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"clusterwatch/pkg/logging"
)

// Session is one live watch over a profile directory. It is single-use and
// pull-based: Next blocks until a non-empty change set is available, the
// session finishes, or a terminal failure occurs.
//
// A Session owns every resource of the watch (the native watch handle or
// polling timer, the debounce timer, the background goroutines) and is the
// only component that releases them.
type Session struct {
	id  string
	co  *coalescer
	det *detector

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// pullMu serializes pulls so two detection cycles for the same session
	// never run concurrently.
	pullMu sync.Mutex
}

// Watch starts watching the configured profile directory and returns the
// session. The sequence of change sets is consumed with Next. The session
// finishes when ctx is cancelled, Close is called, or a terminal failure
// surfaces through Next.
func Watch(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("watch config: directory is required")
	}
	if cfg.Lister == nil {
		return nil, fmt.Errorf("watch config: lister is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("watch config: store is required")
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     uuid.NewString(),
		co:     newCoalescer(cfg.DebounceInterval, cfg.MaxEventsPerWindow),
		det:    &detector{lister: cfg.Lister, store: cfg.Store},
		cancel: cancel,
	}

	source := &directorySource{
		dir:          cfg.Directory,
		pollInterval: cfg.PollInterval,
		notify:       s.co.RawTick,
		fail:         s.abort,
	}

	// Arm the native watch before returning so no event that lands right
	// after Watch can slip past unobserved. An absent directory is fine
	// (nil watcher, the source polls); any other arming failure is fatal.
	w, err := source.start()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", cfg.Directory, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		source.run(sctx, w)
	}()

	// Propagate cancellation into the coalescer so a blocked pull wakes up
	// and reports completion.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-sctx.Done()
		s.co.Close(nil)
	}()

	logging.Debug("ProfileWatcher", "Session %s watching %s (debounce %v, poll %v, max events per window %d)",
		s.id, cfg.Directory, cfg.DebounceInterval, cfg.PollInterval, cfg.MaxEventsPerWindow)

	return s, nil
}

// ID returns the session identifier used in log entries.
func (s *Session) ID() string {
	return s.id
}

// Next blocks until the next non-empty change set. Detection cycles that
// find no profile-relevant difference loop internally without waking the
// caller.
//
// Once the session is finished Next returns ErrWatchClosed; a terminal
// failure (flood condition, native watch failure, listing failure) is
// returned instead and also finishes the session. In every error case all
// session resources have been released before Next returns.
//
// Next must not be called concurrently with itself; pulls are serialized.
func (s *Session) Next(ctx context.Context) (ChangeSet, error) {
	s.pullMu.Lock()
	defer s.pullMu.Unlock()

	for {
		if err := s.co.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// The pull context ended; the session itself stays usable.
				return nil, err
			}
			s.shutdown()
			if !errors.Is(err, ErrWatchClosed) {
				logging.Error("ProfileWatcher", err, "Session %s terminated", s.id)
			}
			return nil, err
		}

		changes, err := s.det.detect(ctx)
		if err != nil {
			// Record the failure for any later pull, then tear down.
			s.co.Close(err)
			s.shutdown()
			logging.Error("ProfileWatcher", err, "Session %s failed to list clusters", s.id)
			return nil, err
		}

		if len(changes) > 0 {
			logging.Debug("ProfileWatcher", "Session %s detected %d change(s)", s.id, len(changes))
			return changes, nil
		}
	}
}

// Close finishes the session and releases every owned resource. It is safe
// to call more than once and safe to call concurrently with Next, which
// will return ErrWatchClosed.
func (s *Session) Close() error {
	return s.CloseWithError(nil)
}

// CloseWithError finishes the session like Close but records err as the
// terminal failure, which subsequent pulls return. Used by consumers that
// need to feed a failure back into the sequence. Only the first close takes
// effect.
func (s *Session) CloseWithError(err error) error {
	s.co.Close(err)
	s.shutdown()
	return nil
}

// abort records a fatal source error and finishes the session. The source
// has already released its own resources when this runs.
func (s *Session) abort(err error) {
	s.co.Close(err)
	s.cancel()
}

// shutdown stops the background goroutines and waits for them to exit.
func (s *Session) shutdown() {
	s.cancel()
	s.wg.Wait()
}
