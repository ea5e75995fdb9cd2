package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
)

// NewWorkerCmd constructs the `docchat worker` command, the long-running
// background ingestion worker.
func NewWorkerCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background ingestion worker",
		Long: `Run the ingestion worker until interrupted. The worker polls the attachment
queue, and for each pending file: chunks it, embeds the chunks with the
active embedding model, writes the vectors to the vector store, and marks
the file completed (or failed, with the reason recorded).

Prometheus metrics are served on --metrics-addr under /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := embedder.ValidateEnv(log); err != nil {
				return fmt.Errorf("worker: %w", err)
			}

			files, err := openFileStore()
			if err != nil {
				return fmt.Errorf("worker: failed to open file store: %w", err)
			}
			defer files.Close()

			registry, err := embedder.NewRegistryFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("worker: failed to initialise embedders: %w", err)
			}

			router, closeRouter, err := buildRouter(ctx, log)
			if err != nil {
				return fmt.Errorf("worker: %w", err)
			}
			defer closeRouter()

			pollInterval := time.Duration(0)
			if v := getEnvOrDefault("INGEST_POLL_INTERVAL", ""); v != "" {
				if parsed, err := time.ParseDuration(v); err == nil {
					pollInterval = parsed
				} else {
					log.Warn("invalid INGEST_POLL_INTERVAL, using default", slog.String("value", v))
				}
			}

			worker, err := ingestion.NewWorker(&ingestion.Config{
				Files:        files,
				Embedders:    registry,
				Store:        router,
				ChunkSize:    getEnvInt("INGEST_CHUNK_SIZE", 0),
				ChunkOverlap: getEnvInt("INGEST_CHUNK_OVERLAP", 0),
				PollInterval: pollInterval,
			})
			if err != nil {
				return fmt.Errorf("worker: %w", err)
			}

			// Metrics endpoint runs beside the worker loop.
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				log.Info("worker: metrics listening", slog.String("addr", metricsAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("worker: metrics server failed", slog.String("error", err.Error()))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			err = worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", getEnvOrDefault("WORKER_METRICS_ADDR", ":9090"), "Bind address for the Prometheus metrics endpoint")

	return cmd
}
