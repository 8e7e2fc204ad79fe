package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/snarg/transcript-segmenter/internal/api"
	"github.com/snarg/transcript-segmenter/internal/metrics"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the worker pool and optional ingest sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ctx)
		},
	}
	cmd.Flags().StringVar(&ctx.overrides.HTTPAddr, "listen", "", "HTTP listen address (default :8080)")
	cmd.Flags().StringVar(&ctx.overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	cmd.Flags().StringVar(&ctx.overrides.WatchDir, "watch-dir", "", "Directory to watch for transcripts")
	cmd.Flags().StringVar(&ctx.overrides.OutputDir, "output-dir", "", "Directory for segmented output")
	return cmd
}

func runServe(cc *commandContext) error {
	startTime := time.Now()
	cfg := cc.cfg
	log := cc.logger(os.Stdout)
	log.Info().Str("version", version).Msg("transcript segmenter starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seg, info, err := buildSegmenter(cfg.Model, log)
	if err != nil {
		return err
	}
	log.Info().
		Str("scorer", info.Scorer).
		Str("features", info.Features).
		Uint64("seed", info.Seed).
		Msg("segmenter ready")

	svc, err := startServices(ctx, cfg, seg, log)
	if err != nil {
		return err
	}
	defer svc.stop()

	collector := metrics.NewCollector(nil, svc.pool)
	if svc.db != nil {
		collector = metrics.NewCollector(svc.db.Pool, svc.pool)
	}
	prometheus.MustRegister(collector)

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(svc.apiOptions(api.ServerOptions{
		Config:    cfg,
		Model:     info,
		Version:   version,
		StartTime: startTime,
		Log:       httpLog,
	}))

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("transcript segmenter stopped")
	return nil
}
