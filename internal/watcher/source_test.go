package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startSource runs a directorySource against dir and returns a tick counter
// plus a stop function.
func startSource(t *testing.T, dir string, pollInterval time.Duration) (*atomic.Int64, func()) {
	t.Helper()

	var ticks atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	src := &directorySource{
		dir:          dir,
		pollInterval: pollInterval,
		notify:       func() { ticks.Add(1) },
		fail: func(err error) {
			t.Errorf("unexpected fatal source error: %v", err)
		},
	}

	w, err := src.start()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		src.run(ctx, w)
	}()

	return &ticks, func() {
		cancel()
		wg.Wait()
	}
}

func waitForTicks(t *testing.T, ticks *atomic.Int64, atLeast int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ticks.Load() >= atLeast
	}, 5*time.Second, 10*time.Millisecond, "expected at least %d raw ticks", atLeast)
}

func TestDirectorySource_TicksOnFileActivity(t *testing.T) {
	dir := t.TempDir()
	ticks, stop := startSource(t, dir, 50*time.Millisecond)
	defer stop()

	// Give the watcher a moment to arm.
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, ticks.Load(), "no ticks before any activity")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("connected: true\n"), 0600))
	waitForTicks(t, ticks, 1)

	before := ticks.Load()
	require.NoError(t, os.Remove(filepath.Join(dir, "a.yaml")))
	waitForTicks(t, ticks, before+1)
}

// The watch must already be armed when startSource returns: a write landing
// immediately afterwards, with no settling period, still ticks.
func TestDirectorySource_ArmedBeforeStartReturns(t *testing.T) {
	dir := t.TempDir()
	ticks, stop := startSource(t, dir, 50*time.Millisecond)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("connected: true\n"), 0600))
	waitForTicks(t, ticks, 1)
}

func TestDirectorySource_CoversSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "leaves")
	require.NoError(t, os.MkdirAll(sub, 0755))

	ticks, stop := startSource(t, dir, 50*time.Millisecond)
	defer stop()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "leaf.yaml"), []byte("leaf: true\n"), 0600))
	waitForTicks(t, ticks, 1)
}

func TestDirectorySource_PollsWhileDirAbsent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profiles")

	ticks, stop := startSource(t, dir, 20*time.Millisecond)
	defer stop()

	// Polling mode: nothing exists, nothing ticks.
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, ticks.Load())

	// Creating the directory resumes native watching and emits one tick.
	require.NoError(t, os.MkdirAll(dir, 0755))
	waitForTicks(t, ticks, 1)

	// Native watching works after the resume.
	before := ticks.Load()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("connected: true\n"), 0600))
	waitForTicks(t, ticks, before+1)
}

func TestDirectorySource_SurvivesDirRemovalAndRecreation(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "profiles")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("connected: true\n"), 0600))

	ticks, stop := startSource(t, dir, 20*time.Millisecond)
	defer stop()
	time.Sleep(100 * time.Millisecond)

	// Deleting the whole directory ticks (the removal itself) and drops the
	// source into polling mode.
	require.NoError(t, os.RemoveAll(dir))
	waitForTicks(t, ticks, 1)

	// Recreating it is noticed within the poll interval.
	before := ticks.Load()
	require.NoError(t, os.MkdirAll(dir, 0755))
	waitForTicks(t, ticks, before+1)

	// And native watching is re-armed.
	before = ticks.Load()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("connected: true\n"), 0600))
	waitForTicks(t, ticks, before+1)
}

func TestDirectorySource_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()

	_, stop := startSource(t, dir, 50*time.Millisecond)
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop after cancellation")
	}
}
