package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clusterwatch/internal/profile"
)

const (
	testDebounce = 30 * time.Millisecond
	testPoll     = 25 * time.Millisecond
)

type sessionFixture struct {
	dir     string
	lister  *profile.Store
	store   *profile.SnapshotStore
	session *Session
}

func newSessionFixture(t *testing.T, dir string, maxEvents int) *sessionFixture {
	t.Helper()

	lister := profile.NewStore(dir)
	store := profile.NewSnapshotStore()

	session, err := Watch(context.Background(), Config{
		Directory:          dir,
		Lister:             lister,
		Store:              store,
		DebounceInterval:   testDebounce,
		PollInterval:       testPoll,
		MaxEventsPerWindow: maxEvents,
	})
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return &sessionFixture{dir: dir, lister: lister, store: store, session: session}
}

// next pulls with a deadline so a hung pipeline fails the test instead of
// blocking it.
func (f *sessionFixture) next(t *testing.T, timeout time.Duration) (ChangeSet, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.session.Next(ctx)
}

// commit refetches the authoritative list and commits it, the way a consumer
// does after processing a change set.
func (f *sessionFixture) commit(t *testing.T) {
	t.Helper()
	clusters, err := f.lister.ListClusters(context.Background())
	if errors.Is(err, profile.ErrNoProfileDir) {
		clusters = nil
	} else {
		require.NoError(t, err)
	}
	f.store.Commit(clusters)
}

func (f *sessionFixture) writeProfile(t *testing.T, name string, connected bool) {
	t.Helper()
	require.NoError(t, profile.NewStore(f.dir).SaveProfile(profile.Cluster{
		URI:       profile.ClusterURI(name),
		Name:      name,
		ProxyHost: name,
		Connected: connected,
		LoggedInUser: profile.LoggedInUser{
			Name:  "alice",
			Roles: []string{"access"},
		},
	}))
}

func TestWatch_ConfigValidation(t *testing.T) {
	lister := profile.NewStore(t.TempDir())
	store := profile.NewSnapshotStore()

	_, err := Watch(context.Background(), Config{Lister: lister, Store: store})
	require.ErrorContains(t, err, "directory is required")

	_, err = Watch(context.Background(), Config{Directory: "/tmp/x", Store: store})
	require.ErrorContains(t, err, "lister is required")

	_, err = Watch(context.Background(), Config{Directory: "/tmp/x", Lister: lister})
	require.ErrorContains(t, err, "store is required")
}

// A write landing the instant Watch returns must surface on the first pull:
// the native watch is armed before Watch hands the session back.
func TestSession_SeesWriteImmediatelyAfterWatch(t *testing.T) {
	f := newSessionFixture(t, t.TempDir(), 0)

	f.writeProfile(t, "a.example.com", true)
	changes, err := f.next(t, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, OpAdded, changes[0].Op)
}

// A pull issued after Close reports completion even when a coalesced tick
// was already pending; the session must not produce changes past its end.
func TestSession_NoChangesDeliveredAfterClose(t *testing.T) {
	f := newSessionFixture(t, t.TempDir(), 0)

	f.writeProfile(t, "a.example.com", true)
	time.Sleep(5 * testDebounce) // let the tick land unconsumed

	require.NoError(t, f.session.Close())

	changes, err := f.session.Next(context.Background())
	require.ErrorIs(t, err, ErrWatchClosed)
	assert.Empty(t, changes)
}

// The full add / remove / change / no-op sequence from an empty directory.
func TestSession_LifecycleOfOneCluster(t *testing.T) {
	f := newSessionFixture(t, t.TempDir(), 0)

	// Adding a cluster yields exactly one added change.
	f.writeProfile(t, "a.example.com", false)
	changes, err := f.next(t, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, OpAdded, changes[0].Op)
	assert.Equal(t, "/clusters/a.example.com", changes[0].Next.URI)
	assert.False(t, changes[0].Next.Connected)
	f.commit(t)

	// Deleting its profile yields removed.
	require.NoError(t, os.Remove(filepath.Join(f.dir, "a.example.com.yaml")))
	changes, err = f.next(t, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, OpRemoved, changes[0].Op)
	assert.Equal(t, "/clusters/a.example.com", changes[0].Previous.URI)
	f.commit(t)

	// Re-adding it comes back as added.
	f.writeProfile(t, "a.example.com", false)
	changes, err = f.next(t, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, OpAdded, changes[0].Op)
	f.commit(t)

	// Flipping the connected flag yields changed with both states.
	f.writeProfile(t, "a.example.com", true)
	changes, err = f.next(t, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, OpChanged, changes[0].Op)
	assert.False(t, changes[0].Previous.Connected)
	assert.True(t, changes[0].Next.Connected)
	f.commit(t)

	// Rewriting the profile without a relevant difference yields nothing:
	// the pull stays blocked until its deadline.
	f.writeProfile(t, "a.example.com", true)
	_, err = f.next(t, 10*testDebounce)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSession_DirectoryRemovalAndRecreation(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "profiles")
	require.NoError(t, os.MkdirAll(dir, 0755))

	f := newSessionFixture(t, dir, 0)

	f.writeProfile(t, "a.example.com", true)
	changes, err := f.next(t, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, OpAdded, changes[0].Op)
	f.commit(t)

	// Deleting the whole directory removes every known cluster.
	require.NoError(t, os.RemoveAll(dir))
	changes, err = f.next(t, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, OpRemoved, changes[0].Op)
	assert.Equal(t, "/clusters/a.example.com", changes[0].Previous.URI)
	f.commit(t)

	// Recreating the directory and adding a cluster is picked up through
	// the polling fallback and the re-armed native watch.
	f.writeProfile(t, "b.example.com", true)
	changes, err = f.next(t, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, OpAdded, changes[0].Op)
	assert.Equal(t, "/clusters/b.example.com", changes[0].Next.URI)
}

func TestSession_SecondWriteDuringProcessingNotLost(t *testing.T) {
	f := newSessionFixture(t, t.TempDir(), 0)

	f.writeProfile(t, "a.example.com", false)
	_, err := f.next(t, 5*time.Second)
	require.NoError(t, err)
	f.commit(t)

	// Consumer is "busy": the write happens before the next pull.
	f.writeProfile(t, "a.example.com", true)
	time.Sleep(5 * testDebounce)

	changes, err := f.next(t, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, OpChanged, changes[0].Op)
}

func TestSession_FloodGuardTerminatesWatch(t *testing.T) {
	f := newSessionFixture(t, t.TempDir(), 1)

	result := make(chan error, 1)
	go func() {
		_, err := f.next(t, 10*time.Second)
		result <- err
	}()

	// Two rapid writes exceed a ceiling of one raw event per window.
	f.writeProfile(t, "a.example.com", false)
	f.writeProfile(t, "b.example.com", false)

	err := <-result
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded event limit")

	// The sequence is permanently finished.
	_, err = f.next(t, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded event limit")
}

func TestSession_CancellationFinishesSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	dir := t.TempDir()
	session, err := Watch(ctx, Config{
		Directory:        dir,
		Lister:           profile.NewStore(dir),
		Store:            profile.NewSnapshotStore(),
		DebounceInterval: testDebounce,
		PollInterval:     testPoll,
	})
	require.NoError(t, err)

	pullResult := make(chan error, 1)
	go func() {
		_, err := session.Next(context.Background())
		pullResult <- err
	}()

	cancel()
	cancel() // signaling more than once has no additional effect

	select {
	case err := <-pullResult:
		require.ErrorIs(t, err, ErrWatchClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending pull was not resolved by cancellation")
	}

	// Completion, not error, on every later pull.
	_, err = session.Next(context.Background())
	require.ErrorIs(t, err, ErrWatchClosed)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	f := newSessionFixture(t, t.TempDir(), 0)

	require.NoError(t, f.session.Close())
	require.NoError(t, f.session.Close())

	_, err := f.session.Next(context.Background())
	require.ErrorIs(t, err, ErrWatchClosed)
}

func TestSession_CloseWithErrorSurfacesFailure(t *testing.T) {
	f := newSessionFixture(t, t.TempDir(), 0)

	consumerErr := errors.New("consumer gave up")
	require.NoError(t, f.session.CloseWithError(consumerErr))

	_, err := f.session.Next(context.Background())
	require.ErrorIs(t, err, consumerErr)
}

func TestSession_HasID(t *testing.T) {
	f := newSessionFixture(t, t.TempDir(), 0)
	assert.NotEmpty(t, f.session.ID())
}
