package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/stopwatch/pkg/cli"
	"mercator-hq/stopwatch/pkg/profiler"
	"mercator-hq/stopwatch/pkg/profiler/httpprof"
)

var listFlags struct {
	max    int
	order  string
	since  time.Duration
	start  string
	finish string
	output string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiling sessions",
	Long: `List sessions from the configured storage, newest first by default.

Examples:
  # The 20 most recent sessions
  stopwatch list -n 20

  # Sessions from the last hour as CSV
  stopwatch list --since 1h --output csv

  # Oldest first within a window
  stopwatch list --order asc --start 2025-11-16T10:00:00Z --finish 2025-11-16T11:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntVarP(&listFlags.max, "max", "n", httpprof.DefaultListSize, "maximum number of sessions (0 for all)")
	listCmd.Flags().StringVar(&listFlags.order, "order", "desc", "sort order by start time (asc, desc)")
	listCmd.Flags().DurationVar(&listFlags.since, "since", 0, "only sessions started within this duration")
	listCmd.Flags().StringVar(&listFlags.start, "start", "", "only sessions started at or after this RFC 3339 time")
	listCmd.Flags().StringVar(&listFlags.finish, "finish", "", "only sessions started at or before this RFC 3339 time")
	listCmd.Flags().StringVarP(&listFlags.output, "output", "o", "text", "output format (text, json, csv)")
}

// summaryTable renders session summaries for the text and CSV formats.
type summaryTable []httpprof.Summary

func (t summaryTable) Header() []string {
	return []string{"ID", "STARTED", "DURATION_MS", "NAME", "USER", "VIEWED"}
}

func (t summaryTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, s := range t {
		rows = append(rows, []string{
			s.ID,
			s.Started.UTC().Format(time.RFC3339),
			strconv.FormatFloat(s.DurationMilliseconds, 'f', 1, 64),
			s.Name,
			s.User,
			strconv.FormatBool(s.HasUserViewed),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(listFlags.output)
	if err != nil {
		return err
	}
	if listFlags.order != "asc" && listFlags.order != "desc" {
		return fmt.Errorf("invalid order %q (want asc or desc)", listFlags.order)
	}
	start, finish, err := listWindow(time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr(), nil)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	ctx := cmd.Context()
	s, err := openStorage(ctx, &cfg.Storage, logger)
	if err != nil {
		return cli.NewCommandError("list", err)
	}
	defer s.Close()
	if s.Storage == nil {
		return cli.NewCommandError("list", fmt.Errorf("storage backend %q keeps no sessions", cfg.Storage.Backend))
	}

	ids, err := s.List(ctx, listFlags.max, start, finish, profiler.ParseListOrder(listFlags.order))
	if err != nil {
		return cli.NewCommandError("list", err)
	}

	summaries := make(summaryTable, 0, len(ids))
	for _, id := range ids {
		p, err := s.Load(ctx, id)
		if err != nil {
			return cli.NewCommandError("list", err)
		}
		if p != nil {
			summaries = append(summaries, httpprof.NewSummary(p))
		}
	}
	return writeOutput(cmd.OutOrStdout(), format, summaries)
}

// listWindow resolves --since, --start and --finish. --since wins over --start.
func listWindow(now time.Time) (start, finish time.Time, err error) {
	if listFlags.start != "" {
		if start, err = time.Parse(time.RFC3339, listFlags.start); err != nil {
			return start, finish, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if listFlags.finish != "" {
		if finish, err = time.Parse(time.RFC3339, listFlags.finish); err != nil {
			return start, finish, fmt.Errorf("invalid --finish: %w", err)
		}
	}
	if listFlags.since > 0 {
		start = now.Add(-listFlags.since)
	}
	return start, finish, nil
}

func writeOutput(w io.Writer, format cli.OutputFormat, data any) error {
	formatter, err := cli.NewFormatter(format)
	if err != nil {
		return err
	}
	return formatter.FormatTo(w, data)
}
