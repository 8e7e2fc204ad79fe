package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/snarg/transcript-segmenter/internal/database"
	"github.com/snarg/transcript-segmenter/internal/segment"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and prune stored segmentation runs",
	}
	cmd.PersistentFlags().StringVar(&ctx.overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL")

	var limit, offset int
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(cmd.Context(), func(db *database.DB) error {
				runs, total, err := db.ListRuns(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"runs": runs, "total": total})
				}
				printRuns(cmd.OutOrStdout(), runs, total)
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	list.Flags().IntVar(&offset, "offset", 0, "Runs to skip")
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the segments of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			return ctx.withDB(cmd.Context(), func(db *database.DB) error {
				run, err := db.GetRun(cmd.Context(), id)
				if errors.Is(err, database.ErrRunNotFound) {
					return fmt.Errorf("run %s not found", id)
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), run)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s  %s  %s  %s\n", run.ID, run.Source, run.Name, run.Outcome)
				if len(run.Segments) == 0 {
					fmt.Fprintln(out, segment.NoSegmentsMessage)
					return nil
				}
				io.WriteString(out, segment.Format(run.Segments))
				return nil
			})
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete runs older than a retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return ctx.withDB(cmd.Context(), func(db *database.DB) error {
				n, err := db.PurgeRunsOlderThan(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs older than %s\n", n, olderThan)
				return nil
			})
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "Retention window, e.g. 720h")

	cmd.AddCommand(list, show, purge)
	return cmd
}

// withDB connects to the configured database for the duration of fn.
func (c *commandContext) withDB(ctx context.Context, fn func(*database.DB) error) error {
	if c.cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL or --database-url is required")
	}
	log := c.logger(os.Stderr).With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, dbOptions(c.cfg), log)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printRuns(w io.Writer, runs []database.RunRow, total int) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID.String(),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Source,
			r.Name,
			r.Outcome,
			fmt.Sprintf("%d", r.SegmentCount),
			fmt.Sprintf("%d", r.SentenceCount),
		})
	}
	fmt.Fprintln(w, renderTable([]column{
		{Title: "ID"},
		{Title: "Created"},
		{Title: "Source"},
		{Title: "Name", WidthMax: 40},
		{Title: "Outcome"},
		{Title: "Segments", Right: true},
		{Title: "Sentences", Right: true},
	}, rows))
	fmt.Fprintf(w, "%d of %d runs\n", len(runs), total)
}
