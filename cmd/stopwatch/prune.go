package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/stopwatch/pkg/cli"
	"mercator-hq/stopwatch/pkg/profiler/retention"
)

var pruneFlags struct {
	maxAge   time.Duration
	maxCount int64
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy once",
	Long: `Delete sessions older than the retention max age, then the oldest sessions above
the max count, from every backend that supports retention.

Examples:
  # Use the configured retention policy
  stopwatch prune

  # Keep three days and at most 10000 sessions
  stopwatch prune --max-age 72h --max-count 10000`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().DurationVar(&pruneFlags.maxAge, "max-age", 0, "override retention max age")
	pruneCmd.Flags().Int64Var(&pruneFlags.maxCount, "max-count", 0, "override retention max count")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-age") {
		cfg.Retention.MaxAge = pruneFlags.maxAge
	}
	if cmd.Flags().Changed("max-count") {
		cfg.Retention.MaxCount = pruneFlags.maxCount
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr(), nil)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	ctx := cmd.Context()
	s, err := openStorage(ctx, &cfg.Storage, logger)
	if err != nil {
		return cli.NewCommandError("prune", err)
	}
	defer s.Close()
	if len(s.prunable) == 0 {
		return cli.NewCommandError("prune", fmt.Errorf("storage backend %q does not support retention", cfg.Storage.Backend))
	}

	var total retention.Result
	for _, p := range newPruners(s, &cfg.Retention) {
		res, err := p.Prune(ctx)
		if err != nil {
			return cli.NewCommandError("prune", err)
		}
		total.DeletedByAge += res.DeletedByAge
		total.DeletedByCount += res.DeletedByCount
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d sessions (%d by age, %d by count)\n",
		total.Total(), total.DeletedByAge, total.DeletedByCount)
	return nil
}
