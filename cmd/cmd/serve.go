package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"neoalexandria/internal/logger"
)

var serveMetricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion worker pool and expose Prometheus metrics",
	Long: `Builds the same engines the other commands use, rebuilds the
in-memory indexes from store state, then blocks: the ingestion worker
pool (started by buildApp) processes submitted jobs in the background,
and a plain net/http server mounts promhttp's handler at /metrics for
an external scraper. There is no HTTP API for ingest/search/graph/
collection/annotate here; those remain CLI-only, per the out-of-scope
note on HTTP routing and auth. Runs until SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.reindex(ctx); err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: serveMetricsAddr, Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("metrics server listening", "addr", serveMetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
		case err := <-errCh:
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
}
