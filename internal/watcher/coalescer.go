package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// coalescer collapses bursts of raw filesystem notifications into single
// ticks separated by a quiet window.
//
// Ticks are delivered through a capacity-one channel: a tick that fires
// while the consumer is still processing the previous one stays pending, so
// the very next Wait observes it instead of losing it. Further fires while
// a tick is already pending collapse into it.
//
// The coalescer also enforces the flood ceiling. Raw notifications are
// counted per debounce window; exceeding maxEvents fails the pending (and
// every future) Wait and the watch tears down.
type coalescer struct {
	window    time.Duration
	maxEvents int

	mu     sync.Mutex
	timer  *time.Timer
	count  int
	closed bool
	err    error

	ticks chan struct{}
	done  chan struct{}
}

func newCoalescer(window time.Duration, maxEvents int) *coalescer {
	return &coalescer{
		window:    window,
		maxEvents: maxEvents,
		ticks:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// RawTick records one raw filesystem notification. It (re)arms the debounce
// timer and trips the flood guard when the per-window ceiling is exceeded.
// Safe to call from any goroutine; a no-op after close.
func (c *coalescer) RawTick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.count++
	if c.maxEvents > 0 && c.count > c.maxEvents {
		c.closeLocked(fmt.Errorf("exceeded event limit: more than %d events detected within %d ms",
			c.maxEvents, c.window.Milliseconds()))
		return
	}

	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.fire)
	} else {
		c.timer.Reset(c.window)
	}
}

// fire runs when the quiet window elapses. It resets the per-window counter
// and makes one tick pending for the consumer. The send happens under the
// mutex so no tick can land after closeLocked has drained the channel.
func (c *coalescer) fire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.count = 0
	c.timer = nil

	// Capacity-one send: a tick already pending absorbs this one.
	select {
	case c.ticks <- struct{}{}:
	default:
	}
}

// Wait blocks until the next coalesced tick, the coalescer is closed, or
// ctx is done. It returns nil on a tick, ErrWatchClosed on normal close,
// the terminal failure on an aborted watch, or the context error.
//
// Close takes precedence: once the coalescer is closed, Wait never reports
// a tick again, even if one was pending when Close ran.
func (c *coalescer) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.closeErr()
	default:
	}

	select {
	case <-c.ticks:
		return nil
	case <-c.done:
		return c.closeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *coalescer) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrWatchClosed
}

// Close finishes the coalescer. A nil err means normal completion; a
// non-nil err is the terminal failure surfaced by every subsequent Wait.
// Idempotent: only the first call takes effect.
func (c *coalescer) Close(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(err)
}

func (c *coalescer) closeLocked(err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	// Discard a pending tick so Wait cannot hand it out after close. fire
	// holds the mutex for its send, so nothing refills the channel here.
	select {
	case <-c.ticks:
	default:
	}

	close(c.done)
}
