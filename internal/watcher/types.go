package watcher

import (
	"context"
	"errors"
	"slices"
	"time"

	"clusterwatch/internal/profile"
)

// DefaultDebounceInterval is the quiet window used to coalesce raw
// filesystem notifications into a single tick.
const DefaultDebounceInterval = 200 * time.Millisecond

// DefaultPollInterval is how often the source checks for the profile
// directory while it does not exist.
const DefaultPollInterval = 1 * time.Second

// ErrWatchClosed is returned by Session.Next once the session has been
// closed or its context cancelled. It marks normal completion of the
// sequence, not a failure.
var ErrWatchClosed = errors.New("profile watch closed")

// Lister is the listing client: it returns the full set of clusters
// currently recorded under the watched directory. A missing directory is
// reported with profile.ErrNoProfileDir.
type Lister interface {
	ListClusters(ctx context.Context) ([]profile.Cluster, error)
}

// Store exposes the last-committed set of known clusters. The watcher never
// writes to it.
type Store interface {
	Clusters() []profile.Cluster
}

// Config configures a watch session.
type Config struct {
	// Directory is the profile directory to watch.
	Directory string

	// Lister provides the current cluster set on each detection cycle.
	Lister Lister

	// Store provides the last-known cluster set on each detection cycle.
	Store Store

	// DebounceInterval is the quiet window for coalescing raw notifications.
	// Defaults to DefaultDebounceInterval.
	DebounceInterval time.Duration

	// PollInterval is the directory existence check interval while the
	// directory is absent. Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// MaxEventsPerWindow caps raw filesystem events inside one debounce
	// window. Exceeding it terminates the watch. Zero means unbounded.
	MaxEventsPerWindow int
}

// ChangeOp describes the kind of change detected for one cluster.
type ChangeOp string

const (
	// OpAdded indicates a cluster appeared in the profile directory.
	OpAdded ChangeOp = "added"

	// OpRemoved indicates a cluster disappeared from the profile directory.
	OpRemoved ChangeOp = "removed"

	// OpChanged indicates a cluster's profile-relevant fields changed.
	OpChanged ChangeOp = "changed"
)

// ProfileChange is one detected change. Previous is zero for OpAdded and
// Next is zero for OpRemoved.
type ProfileChange struct {
	Op       ChangeOp
	Previous SnapshotEntry
	Next     SnapshotEntry
}

// Entry returns the most current entry the change carries: Next for added
// and changed clusters, Previous for removed ones.
func (c ProfileChange) Entry() SnapshotEntry {
	if c.Op == OpRemoved {
		return c.Previous
	}
	return c.Next
}

// ChangeSet is the non-empty, URI-ordered list of changes produced by one
// detection cycle.
type ChangeSet []ProfileChange

// SnapshotEntry is the profile-relevant projection of a cluster record.
// Only fields derivable from the local profile file participate; anything
// that requires an authenticated call is excluded so remote-only churn
// never triggers change events.
type SnapshotEntry struct {
	URI                string
	Connected          bool
	Leaf               bool
	ProfileStatusError string
	ProxyHost          string
	SSOHost            string
	UserName           string
	UserRoles          []string
	DeviceTrusted      bool
}

// makeSnapshotEntry projects a cluster record onto its profile-relevant
// fields.
func makeSnapshotEntry(c profile.Cluster) SnapshotEntry {
	return SnapshotEntry{
		URI:                c.URI,
		Connected:          c.Connected,
		Leaf:               c.Leaf,
		ProfileStatusError: c.ProfileStatusError,
		ProxyHost:          c.ProxyHost,
		SSOHost:            c.SSOHost,
		UserName:           c.LoggedInUser.Name,
		UserRoles:          c.LoggedInUser.Roles,
		DeviceTrusted:      c.LoggedInUser.IsDeviceTrusted,
	}
}

// Equal reports whether two entries agree on every projected field.
func (e SnapshotEntry) Equal(other SnapshotEntry) bool {
	return e.URI == other.URI &&
		e.Connected == other.Connected &&
		e.Leaf == other.Leaf &&
		e.ProfileStatusError == other.ProfileStatusError &&
		e.ProxyHost == other.ProxyHost &&
		e.SSOHost == other.SSOHost &&
		e.UserName == other.UserName &&
		slices.Equal(e.UserRoles, other.UserRoles) &&
		e.DeviceTrusted == other.DeviceTrusted
}
