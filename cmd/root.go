// Package cmd defines the CLI commands for the merchwatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/app"
	"github.com/merchwatch/crawler/internal/config"
	"github.com/merchwatch/crawler/internal/logging"
)

var cfgFile string

type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory. It is a variable so command tests
// can swap in a stub container.
var newApp = func(ctx context.Context, cfgPath string) (*app.App, error) {
	cfg, v, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.InitLogger(cfg.Logging.Development)
	return app.New(ctx, cfg, v, logging.L)
}

// newRootCmd creates and configures the root command. The app container
// is built in PersistentPreRunE and handed to subcommands via context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchwatch",
		Short: "Merch-on-Demand discovery and keyword scoring pipeline",
		Long: `merchwatch discovers Merch-on-Demand apparel listings, recrawls them on
an adaptive schedule, snapshots keyword search results, and derives daily
competition and momentum metrics from the collected data.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			container, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, container))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if container, ok := cmd.Context().Value(appKey).(*app.App); ok && container != nil {
				container.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (all keys also settable via MERCHWATCH_* env)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSerpCmd())
	cmd.AddCommand(newMetricsCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// resolveApp fetches the container injected by the root command.
func resolveApp(ctx context.Context) (*app.App, error) {
	container, ok := ctx.Value(appKey).(*app.App)
	if !ok || container == nil {
		return nil, errors.New("application services not initialized")
	}
	return container, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("command failed", zap.Error(err))
	}
}
