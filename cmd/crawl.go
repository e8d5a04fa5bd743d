package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand: one discovery-and-recrawl
// pass over listing pages, seeded searches, and the due set.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one discovery and recrawl pass",
		Long: `Sweeps the configured best-seller listings and seeded searches for new
candidate ASINs, then crawls every tracked product whose adaptive
schedule marks it due. New merch products are saved and announced.`,

		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	container, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	summary, err := container.Pipeline.RunDiscovery(cmd.Context())
	if err != nil {
		return err
	}
	container.Logger.Info("crawl finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("saved", summary.Saved),
		zap.Int("errored", summary.Errored))
	return nil
}
