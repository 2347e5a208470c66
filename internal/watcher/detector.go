package watcher

import (
	"context"
	"errors"
	"sort"

	"clusterwatch/internal/profile"
)

// detector computes the change set for one detection cycle. It performs two
// reads and nothing else; committing the new snapshot to the store is the
// consumer's responsibility.
type detector struct {
	lister Lister
	store  Store
}

// detect fetches the current cluster list and the last-known snapshot and
// diffs them. A missing profile directory counts as an empty current set,
// which against a non-empty snapshot naturally yields a removal for every
// previously known cluster.
func (d *detector) detect(ctx context.Context) (ChangeSet, error) {
	current, err := d.lister.ListClusters(ctx)
	if err != nil {
		if errors.Is(err, profile.ErrNoProfileDir) {
			current = nil
		} else {
			return nil, err
		}
	}

	previous := d.store.Clusters()
	return diffClusters(previous, current), nil
}

// diffClusters diffs two cluster sets keyed by URI over the
// profile-relevant projection. The result is ordered by URI so identical
// inputs always produce identical output.
func diffClusters(previous, current []profile.Cluster) ChangeSet {
	prevEntries := make(map[string]SnapshotEntry, len(previous))
	for _, c := range previous {
		prevEntries[c.URI] = makeSnapshotEntry(c)
	}
	currEntries := make(map[string]SnapshotEntry, len(current))
	for _, c := range current {
		currEntries[c.URI] = makeSnapshotEntry(c)
	}

	uris := make([]string, 0, len(prevEntries)+len(currEntries))
	for uri := range prevEntries {
		uris = append(uris, uri)
	}
	for uri := range currEntries {
		if _, seen := prevEntries[uri]; !seen {
			uris = append(uris, uri)
		}
	}
	sort.Strings(uris)

	var changes ChangeSet
	for _, uri := range uris {
		prev, inPrev := prevEntries[uri]
		next, inCurr := currEntries[uri]

		switch {
		case inCurr && !inPrev:
			changes = append(changes, ProfileChange{Op: OpAdded, Next: next})
		case inPrev && !inCurr:
			changes = append(changes, ProfileChange{Op: OpRemoved, Previous: prev})
		case !prev.Equal(next):
			changes = append(changes, ProfileChange{Op: OpChanged, Previous: prev, Next: next})
		}
	}

	return changes
}
