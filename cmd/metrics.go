package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newMetricsCmd creates the 'metrics' subcommand: recompute product
// momentum and keyword scorecards from stored data. No network access.
func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Recompute momentum and keyword scores",
		Long: `Derives per-product momentum from crawl history and per-keyword
competition, difficulty and opportunity scores from the latest SERP
snapshots. Operates purely on stored data.`,

		RunE: runMetricsCommand,
	}
}

func runMetricsCommand(cmd *cobra.Command, _ []string) error {
	container, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	summary, err := container.Pipeline.RunMetrics(cmd.Context())
	if err != nil {
		return err
	}
	container.Logger.Info("metrics finished",
		zap.Int("trend_rows", summary.TrendUpserted),
		zap.Int("keyword_rows", summary.KeywordUpserted))
	return nil
}
