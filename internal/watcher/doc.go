// Package watcher turns raw profile directory activity into an ordered
// stream of semantic cluster changes.
//
// # Overview
//
// A watch session coordinates three unreliable inputs into one reliable,
// pull-based sequence of change sets:
//
//   - bursty, duplicate filesystem notifications (fsnotify)
//   - a profile directory that may not exist yet, or may disappear and
//     reappear while watching
//   - a consumer that may process changes slower than they arrive
//
// # Architecture
//
// The session is composed of small single-purpose pieces:
//
//   - directorySource: native recursive fsnotify watch over the profile
//     directory, degrading to existence polling while the directory is
//     absent and re-arming itself once it returns.
//   - coalescer: collapses bursts of raw notifications into single ticks
//     separated by a quiet window, using a capacity-one channel so activity
//     during consumer processing is never lost. It doubles as the flood
//     guard: a configurable ceiling on raw events per window aborts the
//     watch before a pathological event storm can grow unbounded.
//   - change detection: on each tick the current cluster list is read from
//     the listing client, the last-known set from the snapshot store, and
//     the two are diffed over the profile-relevant field projection.
//
// # Usage
//
//	session, err := watcher.Watch(ctx, watcher.Config{
//	    Directory: dir,
//	    Lister:    profileStore,
//	    Store:     snapshotStore,
//	})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	for {
//	    changes, err := session.Next(ctx)
//	    if errors.Is(err, watcher.ErrWatchClosed) {
//	        return nil
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // handle changes, then commit the new snapshot to the store
//	}
//
// Empty detection cycles never surface: Next only returns non-empty change
// sets. The session is single-use; once Next has returned an error the
// sequence is finished and every owned resource has been released.
//
// # Ordering
//
// Ticks are processed strictly in pull order and two detection cycles for
// the same session never run concurrently. Within one change set, changes
// are ordered by cluster URI so identical inputs always produce identical
// output.
package watcher
