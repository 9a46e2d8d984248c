package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vodpipe/internal/config"
	"vodpipe/internal/logging"
	"vodpipe/internal/pipeline"
	"vodpipe/internal/runlock"
	"vodpipe/internal/store"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "process <id>",
		Short: "Run the transcoding pipeline for an uploaded video in the foreground",
		Long: "Run the transcoding pipeline for a video still in the uploading state, " +
			"for example one whose background job never started. Videos that already " +
			"reached processing, processed, or failed are rejected.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, st store.Store) error {
				level := cfg.Logging.Level
				if quiet {
					level = "error"
				}
				logger, err := logging.New(logging.Options{
					Level:  level,
					Format: cfg.Logging.Format,
					Writer: cmd.ErrOrStderr(),
				})
				if err != nil {
					return err
				}
				locker, err := runlock.New(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer locker.Close()

				orch := pipeline.New(cfg, st, pipeline.WithLocker(locker), pipeline.WithLogger(logger))
				res, runErr := orch.Run(cmd.Context(), strings.TrimSpace(args[0]))
				if res.Status != "" {
					printRunResult(cmd.OutOrStdout(), res)
				}
				return runErr
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	return cmd
}

func printRunResult(out io.Writer, res pipeline.Result) {
	rows := make([][]string, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		result := "ok"
		if o.Err != nil {
			result = "failed: " + o.Err.Error()
		}
		rows = append(rows, []string{o.Rendition.Label, o.Rendition.Bitrate, o.Elapsed.Round(time.Millisecond).String(), result})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable([]column{
			{Header: "Rendition"},
			{Header: "Bitrate", Right: true},
			{Header: "Elapsed", Right: true},
			{Header: "Result", MaxWidth: 60},
		}, rows))
	}
	if res.ThumbnailErr != nil {
		fmt.Fprintf(out, "Thumbnails: %v\n", res.ThumbnailErr)
	}
	fmt.Fprintf(out, "Video %s: %s in %s\n", res.VideoID, statusLabel(res.Status), res.Elapsed.Round(time.Millisecond))
}
