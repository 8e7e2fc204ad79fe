package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/snarg/transcript-segmenter/internal/segment"
	"github.com/snarg/transcript-segmenter/internal/transcript"
)

// fileResult pairs an input path with its segmentation, or with the error
// that stopped it. One bad transcript does not fail the others.
type fileResult struct {
	File   string          `json:"file"`
	Result *segment.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	err error
}

type runOptions struct {
	format    string
	output    string
	outputDir string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <transcript>...",
		Short: "Segment transcript files and print or write the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case "text", "table", "json":
			default:
				return fmt.Errorf("unknown format %q (want text, table or json)", opts.format)
			}
			if opts.output != "" && len(args) > 1 {
				return errors.New("--output takes a single transcript; use --output-dir for several")
			}

			log := ctx.logger(cmd.ErrOrStderr())
			seg, _, err := buildSegmenter(ctx.cfg.Model, log)
			if err != nil {
				return err
			}
			results, err := segmentFiles(cmd.Context(), seg, args, ctx.cfg.Workers)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.output != "" || opts.outputDir != "" {
				err = writeResults(out, results, opts)
			} else {
				err = printResults(out, results, opts.format)
			}
			if err != nil {
				return err
			}
			return batchError(results)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, table or json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the segmented transcript to this file")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Write <name>.segments.txt for each transcript into this directory")
	return cmd
}

// segmentFiles parses and segments paths concurrently, at most limit at a
// time. Results keep the order of paths. Per-file failures are recorded in
// the result; only cancellation aborts the batch.
func segmentFiles(ctx context.Context, seg *segment.Segmenter, paths []string, limit int) ([]fileResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	results := make([]fileResult, len(paths))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = segmentFile(seg, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func segmentFile(seg *segment.Segmenter, path string) fileResult {
	fr := fileResult{File: path}
	t, err := transcript.ParseFile(path)
	if err == nil {
		var res segment.Result
		res, err = seg.Segment(t)
		if err == nil {
			fr.Result = &res
			return fr
		}
		err = fmt.Errorf("%s: %w", path, err)
	}
	fr.err = err
	fr.Error = err.Error()
	return fr
}

// batchError joins the per-file errors so the command exits non-zero after
// every transcript has been reported.
func batchError(results []fileResult) error {
	var errs []error
	for _, fr := range results {
		if fr.err != nil {
			errs = append(errs, fr.err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d transcripts failed: %w", len(errs), len(results), errors.Join(errs...))
}

func printResults(w io.Writer, results []fileResult, format string) error {
	if format == "json" {
		if len(results) == 1 {
			return writeJSON(w, results[0])
		}
		return writeJSON(w, results)
	}

	for i, fr := range results {
		if len(results) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			status := "failed"
			if fr.Result != nil {
				status = fr.Result.Outcome.String()
			}
			fmt.Fprintf(w, "== %s (%s) ==\n", fr.File, status)
		}
		switch {
		case fr.Result == nil:
			fmt.Fprintf(w, "error: %s\n", fr.Error)
		case len(fr.Result.Segments) == 0:
			fmt.Fprintln(w, segment.NoSegmentsMessage)
		case format == "table":
			fmt.Fprintln(w, segmentTable(fr.Result.Segments))
		default:
			io.WriteString(w, segment.Format(fr.Result.Segments))
		}
	}
	return nil
}

func writeResults(w io.Writer, results []fileResult, opts *runOptions) error {
	if opts.outputDir != "" {
		if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	for _, fr := range results {
		if fr.Result == nil {
			fmt.Fprintf(w, "%s: error: %s\n", fr.File, fr.Error)
			continue
		}
		dest := opts.output
		if dest == "" {
			dest = filepath.Join(opts.outputDir, segmentsFileName(fr.File))
		}
		written, err := segment.WriteFile(dest, *fr.Result)
		if err != nil {
			return err
		}
		if !written {
			fmt.Fprintf(w, "%s: %s\n", fr.File, segment.NoSegmentsMessage)
			continue
		}
		fmt.Fprintf(w, "%s: %d segments saved to %s\n", fr.File, len(fr.Result.Segments), dest)
	}
	return nil
}

// segmentsFileName maps "talks/standup.txt" to "standup.segments.txt".
func segmentsFileName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".segments.txt"
}
