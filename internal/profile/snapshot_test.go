package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore_EmptyByDefault(t *testing.T) {
	store := NewSnapshotStore()
	assert.Empty(t, store.Clusters())
}

func TestSnapshotStore_CommitAndRead(t *testing.T) {
	store := NewSnapshotStore()

	committed := []Cluster{
		{URI: ClusterURI("a.example.com"), Name: "a.example.com", Connected: true},
		{URI: ClusterURI("b.example.com"), Name: "b.example.com"},
	}
	store.Commit(committed)

	got := store.Clusters()
	require.Equal(t, committed, got)

	// Mutating the returned slice must not affect the store.
	got[0].Connected = false
	assert.True(t, store.Clusters()[0].Connected)

	// Mutating the committed slice after the fact must not either.
	committed[1].Name = "mutated"
	assert.Equal(t, "b.example.com", store.Clusters()[1].Name)
}

func TestSnapshotStore_CommitReplaces(t *testing.T) {
	store := NewSnapshotStore()
	store.Commit([]Cluster{{URI: ClusterURI("a.example.com")}})
	store.Commit(nil)
	assert.Empty(t, store.Clusters())
}
