package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"clusterwatch/internal/profile"
	"clusterwatch/internal/watcher"
	"clusterwatch/pkg/logging"
)

var (
	watchDir          string
	watchOutputFormat string
	watchLogLevel     string
	watchQuiet        bool
	watchDebounce     time.Duration
	watchPollInterval time.Duration
	watchMaxEvents    int
)

// newWatchCmd creates the Cobra command that runs a watch session and
// prints every change set until interrupted.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the profile directory and report cluster changes",
		Long: `Watch starts a session against the profile directory and prints every
added, removed, or changed cluster as soon as it is detected. The session
survives the directory being deleted and recreated, and terminates only on
interrupt or an unrecoverable failure.

A terminal failure (such as an exceeded event limit) ends the process with
a non-zero exit code; supervisors should restart it and resynchronize.`,
		RunE: runWatch,
	}

	cmd.Flags().StringVar(&watchDir, "dir", "", "Profile directory (default: ~/.config/clusterwatch/profiles)")
	cmd.Flags().StringVarP(&watchOutputFormat, "output", "o", outputTable, "Output format (table, json)")
	cmd.Flags().StringVar(&watchLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVarP(&watchQuiet, "quiet", "q", false, "Suppress the idle indicator and informational output")
	cmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounceInterval, "Quiet window for coalescing filesystem events")
	cmd.Flags().DurationVar(&watchPollInterval, "poll-interval", watcher.DefaultPollInterval, "Existence check interval while the directory is absent")
	cmd.Flags().IntVar(&watchMaxEvents, "max-events", 0, "Maximum raw filesystem events per debounce window, 0 for unbounded")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	logging.InitForCLI(logging.ParseLevel(watchLogLevel), os.Stderr)

	if err := validateOutputFormat(watchOutputFormat); err != nil {
		return err
	}

	dir := watchDir
	if dir == "" {
		var err error
		dir, err = profile.DefaultDir()
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lister := profile.NewStore(dir)
	snapshot := profile.NewSnapshotStore()

	// Prime the snapshot with the current state so the watch reports changes
	// relative to startup.
	if err := commitSnapshot(ctx, lister, snapshot); err != nil {
		return err
	}

	session, err := watcher.Watch(ctx, watcher.Config{
		Directory:          dir,
		Lister:             lister,
		Store:              snapshot,
		DebounceInterval:   watchDebounce,
		PollInterval:       watchPollInterval,
		MaxEventsPerWindow: watchMaxEvents,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	logging.Info("CLI", "Watching %s (session %s)", dir, session.ID())
	notifyReady()

	out := cmd.OutOrStdout()
	for {
		var s *spinner.Spinner
		if !watchQuiet && watchOutputFormat == outputTable {
			s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			s.Suffix = " Waiting for profile changes..."
			s.Start()
		}

		changes, err := session.Next(ctx)
		if s != nil {
			s.Stop()
		}

		if errors.Is(err, watcher.ErrWatchClosed) || errors.Is(err, context.Canceled) {
			logging.Info("CLI", "Watch session %s finished", session.ID())
			return nil
		}
		if err != nil {
			logging.Error("CLI", err, "Watch session %s terminated", session.ID())
			return fmt.Errorf("watch terminated: %w", err)
		}

		if err := renderChangeSet(out, watchOutputFormat, changes); err != nil {
			return err
		}

		// Commit only after the change set has been fully consumed.
		if err := commitSnapshot(ctx, lister, snapshot); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// commitSnapshot refetches the authoritative cluster list and commits it as
// the new last-known set. A missing directory commits the empty set.
func commitSnapshot(ctx context.Context, lister *profile.Store, snapshot *profile.SnapshotStore) error {
	clusters, err := lister.ListClusters(ctx)
	if err != nil {
		if errors.Is(err, profile.ErrNoProfileDir) {
			clusters = nil
		} else {
			return err
		}
	}
	snapshot.Commit(clusters)
	return nil
}

// notifyReady tells systemd the watcher is up. Outside systemd this is a
// no-op.
func notifyReady() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logging.Warn("CLI", "Failed to notify systemd: %v", err)
		return
	}
	if sent {
		logging.Debug("CLI", "Notified systemd readiness")
	}
}
