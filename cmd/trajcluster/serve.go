package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/trajectory-cluster/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/trajectory-cluster/internal/adapter/kafka"
	"github.com/couchcryptid/trajectory-cluster/internal/adapter/plot"
	"github.com/couchcryptid/trajectory-cluster/internal/observability"
	"github.com/couchcryptid/trajectory-cluster/internal/pipeline"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *clusterFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume samples from Kafka and publish labeled trajectories",
		Long: `
serve drains the source topic every RUN_INTERVAL, clusters what it read and
publishes the labeled samples to the sink topic. It also serves /healthz,
/readyz, /metrics and POST /v1/cluster on HTTP_ADDR.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			metrics := observability.NewMetrics()

			reader := kafkaadapter.NewReader(cfg, logger)
			writer := kafkaadapter.NewWriter(cfg, logger)
			clusterer := newClusterer(cfg, logger)

			options := []pipeline.Option{pipeline.WithInterval(cfg.RunInterval)}
			if cfg.PlotDir != "" {
				options = append(options, pipeline.WithReporter(plot.NewRenderer(cfg.PlotDir, logger)))
			}
			p := pipeline.New(reader, clusterer, writer, cfg.Clustering.Options(), logger, metrics, options...)

			srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger,
				httpadapter.WithClusterAPI(clusterer, cfg.Clustering))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Start HTTP server.
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", "error", err)
				}
			}()

			// Start clustering pipeline.
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := p.Run(ctx); err != nil {
					logger.Error("pipeline error", "error", err)
				}
			}()

			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
			select {
			case <-done:
			case <-shutdownCtx.Done():
				logger.Warn("pipeline did not stop before shutdown timeout")
			}
			if err := reader.Close(); err != nil {
				logger.Error("kafka reader close error", "error", err)
			}
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}

			logger.Info("shutdown complete")
			return nil
		},
	}
}
