package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/snarg/transcript-segmenter/internal/config"
)

// commandContext carries flag values and the loaded config to subcommands.
type commandContext struct {
	overrides config.Overrides
	seed      uint64
	cfg       *config.Config
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "segmenter",
		Short:         "Split timed transcripts into topical segments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("seed") {
				ctx.overrides.Seed = &ctx.seed
			}
			cfg, err := config.Load(ctx.overrides)
			if err != nil {
				return err
			}
			ctx.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flags.StringVar(&ctx.overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.Uint64Var(&ctx.seed, "seed", 42, "Seed for model parameters and random features")
	flags.StringVar(&ctx.overrides.Scorer, "scorer", "", "Boundary scorer: pointer or heuristic")
	flags.StringVar(&ctx.overrides.Features, "features", "", "Token features: random or hashed")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// logger builds the process logger at the configured level.
func (c *commandContext) logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(level)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
