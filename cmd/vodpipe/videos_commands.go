package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vodpipe/internal/config"
	"vodpipe/internal/store"
	"vodpipe/internal/videos"
)

func newVideosCommand(ctx *commandContext) *cobra.Command {
	videosCmd := &cobra.Command{
		Use:   "videos",
		Short: "Inspect recorded videos",
	}
	videosCmd.AddCommand(newVideosListCommand(ctx))
	videosCmd.AddCommand(newVideosShowCommand(ctx))
	return videosCmd
}

func newVideosListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var page, perPage int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List videos, newest first",
		Long:  "List videos newest first. Without --status every video is shown, unlike the HTTP listing which only returns processed videos.",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, st store.Store) error {
				svc := videos.New(cfg, st, nil)
				result, err := svc.ListByStatus(cmd.Context(), statuses, page, perPage)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}
				printVideoPage(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (uploading, processing, processed, failed)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", videos.DefaultPerPage, "Videos per page")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func newVideosShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one video and its renditions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, st store.Store) error {
				detail, err := lookupVideo(cmd.Context(), cfg, st, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, detail)
				}
				printVideoDetail(cmd.OutOrStdout(), detail)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func lookupVideo(ctx context.Context, cfg *config.Config, st store.Store, id string) (*videos.Detail, error) {
	detail, err := videos.New(cfg, st, nil).Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("video %s: %w", id, err)
	}
	return detail, nil
}

func parseStatuses(values []string) ([]store.Status, error) {
	out := make([]store.Status, 0, len(values))
	for _, v := range values {
		status, ok := store.ParseStatus(strings.ToLower(strings.TrimSpace(v)))
		if !ok {
			return nil, fmt.Errorf("unknown status %q", v)
		}
		out = append(out, status)
	}
	return out, nil
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func statusLabel(s store.Status) string {
	return titleCase(string(s))
}

func formatDuration(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return (time.Duration(*seconds * float64(time.Second))).Round(time.Second).String()
}

func qualityLabels(qualities []store.Quality) string {
	if len(qualities) == 0 {
		return "-"
	}
	labels := make([]string, len(qualities))
	for i, q := range qualities {
		labels[i] = q.Resolution
	}
	return strings.Join(labels, ", ")
}

func printVideoPage(out io.Writer, page *videos.Page) {
	if len(page.Videos) == 0 {
		fmt.Fprintln(out, "No videos")
		return
	}
	rows := make([][]string, 0, len(page.Videos))
	for _, v := range page.Videos {
		rows = append(rows, []string{
			v.ID,
			v.Title,
			statusLabel(v.Status),
			formatDuration(v.Duration),
			qualityLabels(v.Qualities),
			v.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		{Header: "ID"},
		{Header: "Title", MaxWidth: 40},
		{Header: "Status"},
		{Header: "Duration", Right: true},
		{Header: "Renditions"},
		{Header: "Created"},
	}, rows))
	fmt.Fprintf(out, "Page %d of %d (%d videos)\n", page.Page, max(page.TotalPages, 1), page.Total)
}

func printVideoDetail(out io.Writer, d *videos.Detail) {
	fmt.Fprintf(out, "ID:          %s\n", d.ID)
	fmt.Fprintf(out, "Title:       %s\n", d.Title)
	if d.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", d.Description)
	}
	fmt.Fprintf(out, "Status:      %s\n", statusLabel(d.Status))
	fmt.Fprintf(out, "Duration:    %s\n", formatDuration(d.Duration))
	fmt.Fprintf(out, "Created:     %s\n", d.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "Updated:     %s\n", d.UpdatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "Stream:      %s\n", d.StreamURL)
	fmt.Fprintf(out, "Thumbnail:   %s\n", d.ThumbnailURL)
	if len(d.Qualities) == 0 {
		return
	}
	rows := make([][]string, 0, len(d.Qualities))
	for _, q := range d.Qualities {
		rows = append(rows, []string{q.Resolution, q.Bitrate, q.FilePath})
	}
	fmt.Fprintln(out, renderTable([]column{
		{Header: "Resolution"},
		{Header: "Bitrate", Right: true},
		{Header: "Playlist"},
	}, rows))
}
