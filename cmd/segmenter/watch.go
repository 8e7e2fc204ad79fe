package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Segment transcripts as they appear in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(ctx)
		},
	}
	cmd.Flags().StringVar(&ctx.overrides.WatchDir, "watch-dir", "", "Directory to watch for transcripts")
	cmd.Flags().StringVar(&ctx.overrides.OutputDir, "output-dir", "", "Directory for segmented output")
	cmd.Flags().StringVar(&ctx.overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	return cmd
}

func runWatch(cc *commandContext) error {
	cfg := cc.cfg
	if cfg.WatchDir == "" {
		return errors.New("watch requires WATCH_DIR or --watch-dir")
	}
	log := cc.logger(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seg, _, err := buildSegmenter(cfg.Model, log)
	if err != nil {
		return err
	}
	svc, err := startServices(ctx, cfg, seg, log)
	if err != nil {
		return err
	}
	defer svc.stop()

	log.Info().Str("dir", cfg.WatchDir).Str("output", svc.store.Type()).Msg("watching for transcripts")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	return nil
}
