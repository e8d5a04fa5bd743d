package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newSerpCmd creates the 'serp' subcommand: enqueue keyword jobs and
// drain one batch of search-result snapshots.
func newSerpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serp [keyword ...]",
		Short: "Snapshot keyword search results",
		Long: `Enqueues the configured search keywords (plus any given as arguments,
which jump the queue) and processes one batch of pending jobs. Each
completed job replaces the stored snapshot for its keyword wholesale.`,

		RunE: runSerpCommand,
	}
	return cmd
}

func runSerpCommand(cmd *cobra.Command, args []string) error {
	container, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	if len(args) > 0 {
		enqueued, err := container.Pipeline.EnqueueKeywords(cmd.Context(), args, container.Config.Crawler.Alias, 10)
		if err != nil {
			return err
		}
		container.Logger.Info("ad-hoc keywords enqueued", zap.Int("count", enqueued))
	}

	summary, err := container.Pipeline.RunSerp(cmd.Context())
	if err != nil {
		return err
	}
	container.Logger.Info("serp batch finished",
		zap.Int("jobs", summary.JobsProcessed),
		zap.Int("rows", summary.SnapshotsInserted))
	return nil
}
