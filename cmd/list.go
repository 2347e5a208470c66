package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"clusterwatch/internal/profile"
	"clusterwatch/pkg/logging"
)

var (
	listDir          string
	listOutputFormat string
	listLogLevel     string
)

// newListCmd creates the Cobra command that prints the clusters currently
// recorded in the profile directory.
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clusters recorded in the profile directory",
		Long: `List reads the profile directory once and prints every cluster it
records, including clusters whose profile could not be parsed (shown with
their status error). A missing directory is treated as an empty list.`,
		RunE: runList,
	}

	cmd.Flags().StringVar(&listDir, "dir", "", "Profile directory (default: ~/.config/clusterwatch/profiles)")
	cmd.Flags().StringVarP(&listOutputFormat, "output", "o", outputTable, "Output format (table, json)")
	cmd.Flags().StringVar(&listLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	logging.InitForCLI(logging.ParseLevel(listLogLevel), os.Stderr)

	if err := validateOutputFormat(listOutputFormat); err != nil {
		return err
	}

	dir := listDir
	if dir == "" {
		var err error
		dir, err = profile.DefaultDir()
		if err != nil {
			return err
		}
	}

	clusters, err := profile.NewStore(dir).ListClusters(cmd.Context())
	if err != nil {
		if errors.Is(err, profile.ErrNoProfileDir) {
			clusters = nil
		} else {
			return err
		}
	}

	return renderClusters(cmd.OutOrStdout(), listOutputFormat, clusters)
}
