package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/tagbox/internal/api"
	"github.com/wesm/tagbox/internal/metrics"
	"github.com/wesm/tagbox/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with scheduled index rebuilds",
	Long: `Run tagbox as a long-running daemon.

The daemon runs in the foreground and performs:
  - HTTP API server on the configured port (default: 8080)
  - Polling of the database for changes made by other processes
  - Scheduled relation index rebuilds

Configure it in config.toml:
  [index]
  rebuild_schedule = "0 * * * *"   # cron format; empty disables
  watch_interval = "2s"

  [server]
  api_port = 8080
  api_key = "..."

Prometheus metrics are served at /metrics.

Use Ctrl+C to stop the daemon gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}
	interval, err := cfg.WatchInterval()
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	collector := metrics.NewCollector("tagbox")
	sess, err := openSession(cmd.Context(), s, collector)
	if err != nil {
		return err
	}

	sched := scheduler.New().WithLogger(logger)
	if expr := cfg.Index.RebuildSchedule; expr != "" {
		if err := sched.AddJob(api.RebuildJob, expr, sess.Rebuild); err != nil {
			return fmt.Errorf("schedule rebuild: %w", err)
		}
	}

	apiServer := api.NewServer(cfg, api.Deps{
		Mailbox:   sess,
		Store:     s,
		Scheduler: sched,
		Metrics:   collector,
	}, logger)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sched.Run(ctx)
	})
	if interval > 0 {
		g.Go(func() error {
			return sess.Watch(ctx, interval)
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tagbox daemon started\n")
	fmt.Fprintf(out, "  API server: http://%s\n", cfg.ListenAddr())
	fmt.Fprintf(out, "  Data directory: %s\n", cfg.Data.DataDir)
	for _, st := range sched.Status() {
		fmt.Fprintf(out, "  %s: %s\n", st.Name, st.Schedule)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop.")

	if err := g.Wait(); err != nil {
		logger.Error("daemon stopped", "error", err)
		return err
	}
	fmt.Fprintln(out, "Shutdown complete.")
	return nil
}
