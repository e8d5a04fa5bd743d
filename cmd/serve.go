package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/api"
	"github.com/merchwatch/crawler/internal/app"
	"github.com/merchwatch/crawler/internal/clock/system"
	"github.com/merchwatch/crawler/internal/telemetry"
)

// newServeCmd creates the 'serve' subcommand: the long-running mode
// that schedules crawl/serp/metrics passes and exposes the ops server.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled passes and the ops HTTP server",
		Long: `Runs crawl, serp and metrics passes on their configured cron schedules
and serves /healthz and Prometheus /metrics until interrupted.`,

		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	container, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, err := buildScheduler(ctx, container)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", container.Config.Server.Port),
		Handler:           opsRouter(container),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	container.Logger.Info("ops server listening", zap.Int("port", container.Config.Server.Port))

	select {
	case err := <-serveErr:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	container.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown ops server: %w", err)
	}
	return nil
}

// buildScheduler registers the three pipeline passes on their cron
// expressions. A failed pass is logged, never fatal to the serve loop.
func buildScheduler(ctx context.Context, container *app.App) (*cron.Cron, error) {
	scheduler := cron.New()

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"crawl", container.Config.Schedule.Crawl, func(ctx context.Context) error {
			_, err := container.Pipeline.RunDiscovery(ctx)
			return err
		}},
		{"serp", container.Config.Schedule.Serp, func(ctx context.Context) error {
			_, err := container.Pipeline.RunSerp(ctx)
			return err
		}},
		{"metrics", container.Config.Schedule.Metrics, func(ctx context.Context) error {
			_, err := container.Pipeline.RunMetrics(ctx)
			return err
		}},
	}
	for _, job := range jobs {
		job := job
		if _, err := scheduler.AddFunc(job.spec, func() {
			container.Logger.Info("scheduled pass starting", zap.String("job", job.name))
			if err := job.run(ctx); err != nil {
				container.Logger.Error("scheduled pass failed",
					zap.String("job", job.name), zap.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
	}
	return scheduler, nil
}

func opsRouter(container *app.App) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(telemetry.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Method(http.MethodGet, "/metrics", telemetry.Handler())

	queryAPI := api.NewServer(container.Products, container.Serp, container.Metrics, system.New(), container.Logger)
	router.Mount("/v1", queryAPI.Handler())
	return router
}
