package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/coverage"
	"github.com/jandy1990/wwfm-platform-sub006/internal/pipeline"
	"github.com/jandy1990/wwfm-platform-sub006/internal/worker"
	"github.com/spf13/cobra"
)

var (
	generateDryRun      bool
	generateStrategy    string
	generateGoals       int
	generatePerCategory int
	generateCategories  []string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation pass over the next goals",
	Long: `Selects goals by coverage strategy, generates candidate solutions per
applicable category, passes them through the credibility gate and inserts
the accepted ones. Prints the run report as JSON.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "gate candidates without persisting them")
	generateCmd.Flags().StringVar(&generateStrategy, "strategy", "", "goal selection strategy (default from config)")
	generateCmd.Flags().IntVar(&generateGoals, "goals", 0, "number of goals to process (default from config)")
	generateCmd.Flags().IntVar(&generatePerCategory, "per-category", 0, "solutions to request per category (default from config)")
	generateCmd.Flags().StringSliceVar(&generateCategories, "categories", nil, "restrict generation to these categories")
	rootCmd.AddCommand(generateCmd)
}

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	opts := pipeline.RunOptions{
		Strategy:    a.strategy,
		Goals:       cfg.Generation.GoalsPerRun,
		PerCategory: generatePerCategory,
		DryRun:      generateDryRun,
	}
	if generateStrategy != "" {
		if opts.Strategy, err = coverage.ParseStrategy(generateStrategy); err != nil {
			return err
		}
	}
	if generateGoals > 0 {
		opts.Goals = generateGoals
	}
	if opts.Categories, err = parseCategories(generateCategories); err != nil {
		return err
	}

	coord := worker.NewGenerationCoordinator(a.runner, a.selector, time.Duration(cfg.Generation.Interval), opts)
	report, err := coord.RunOnce(ctx, opts)
	if report != nil {
		if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}
