package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/stopwatch/pkg/cli"
	"mercator-hq/stopwatch/pkg/profiler"
)

var showFlags struct {
	output     string
	markViewed bool
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one profiling session",
	Long: `Print a stored session as an indented timing tree, or as JSON.

Examples:
  stopwatch show 6f1c2a8e-4b0e-4c61-9a0e-0f7f3c1f4a55
  stopwatch show 6f1c2a8e-4b0e-4c61-9a0e-0f7f3c1f4a55 --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().StringVarP(&showFlags.output, "output", "o", "text", "output format (text, json)")
	showCmd.Flags().BoolVar(&showFlags.markViewed, "mark-viewed", false, "mark the session viewed for its user")
}

func runShow(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(showFlags.output)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return fmt.Errorf("show does not support csv output")
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
		return cli.NewCommandError("show", err)
	}
	defer s.Close()
	if s.Storage == nil {
		return cli.NewCommandError("show", fmt.Errorf("storage backend %q keeps no sessions", cfg.Storage.Backend))
	}

	id := args[0]
	p, err := s.Load(ctx, id)
	if err != nil {
		return cli.NewCommandError("show", err)
	}
	if p == nil {
		return cli.NewCommandError("show", &cli.NotFoundError{ID: id})
	}

	if showFlags.markViewed && !p.HasUserViewed {
		if err := s.SetViewed(ctx, p.User, p.ID); err != nil {
			return cli.NewCommandError("show", err)
		}
		p.HasUserViewed = true
	}

	if format == cli.FormatJSON {
		return writeOutput(cmd.OutOrStdout(), format, p)
	}
	return profiler.RenderPlainText(cmd.OutOrStdout(), p)
}
