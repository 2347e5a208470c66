// Package profile implements the local profile directory store.
//
// A profile is the on-disk record of a root cluster's connection state and
// cached identity for the current user. Each profile lives in its own YAML
// file inside the profile directory, named after the cluster
// (e.g. teleport.example.com.yaml).
//
// The package provides two collaborators consumed by the watcher:
//
//   - Store: reads the profile directory and materializes Cluster values
//     (the listing client). A missing directory is reported with the
//     distinguishable ErrNoProfileDir condition.
//   - SnapshotStore: the in-memory last-committed cluster set. The watcher
//     only reads it; committing a new snapshot is the consumer's job after
//     it has processed a change set.
//
// Profile files describe local state only. Fields of Cluster that can only
// be learned from an authenticated call to the cluster (AuthClusterID,
// ProxyVersion, active access requests) are left zero when reading from
// disk.
package profile
