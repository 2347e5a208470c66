// Package logging provides the structured logging system for clusterwatch.
//
// It is a thin wrapper around Go's standard slog package that adds a
// subsystem tag to every entry so that watcher, profile store, and CLI
// output can be filtered independently.
//
// # Log Levels
//   - Debug: detailed information for development and troubleshooting
//   - Info: general information about normal operation
//   - Warn: potential issues that do not stop the watcher
//   - Error: failures and exceptional conditions
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("ProfileWatcher", "watching %s", dir)
//	logging.Warn("ProfileStore", "skipping unreadable profile: %v", err)
//	logging.Error("ProfileWatcher", err, "watch terminated")
//
// # Subsystems
//
// Logs are tagged by subsystem to enable filtering:
//
//   - ProfileWatcher: watch session lifecycle and change detection
//   - WatchSource: native filesystem watching and polling fallback
//   - ProfileStore: profile directory reads
//   - CLI: command execution
//
// The logger is safe for concurrent use; level filtering happens in the
// handler so that suppressed entries cost no allocations.
package logging
