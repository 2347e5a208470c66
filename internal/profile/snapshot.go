package profile

import "sync"

// SnapshotStore holds the last-committed set of known clusters.
//
// The watcher reads it on every detection cycle to diff against the current
// directory contents. The store has a single writer: the consumer of the
// watch, which commits the new snapshot only after it has successfully
// processed a change set.
type SnapshotStore struct {
	mu       sync.RWMutex
	clusters []Cluster
}

// NewSnapshotStore creates an empty snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Clusters returns a copy of the last-committed cluster set.
func (s *SnapshotStore) Clusters() []Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Cluster, len(s.clusters))
	copy(out, s.clusters)
	return out
}

// Commit replaces the snapshot with the given cluster set.
func (s *SnapshotStore) Commit(clusters []Cluster) {
	next := make([]Cluster, len(clusters))
	copy(next, clusters)

	s.mu.Lock()
	s.clusters = next
	s.mu.Unlock()
}
