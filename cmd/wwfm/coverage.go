package main

import (
	"github.com/jandy1990/wwfm-platform-sub006/internal/coverage"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
	"github.com/spf13/cobra"
)

var (
	coverageNext     int
	coverageStrategy string
	coverageRecord   bool
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Print the coverage summary and optionally the next goals to fill",
	RunE:  runCoverage,
}

func init() {
	coverageCmd.Flags().IntVar(&coverageNext, "next", 0, "also list the next N goals the strategy would select")
	coverageCmd.Flags().StringVar(&coverageStrategy, "strategy", "", "selection strategy for --next (default from config)")
	coverageCmd.Flags().BoolVar(&coverageRecord, "record", false, "persist the summary as a progress record")
	rootCmd.AddCommand(coverageCmd)
}

type coverageOutput struct {
	Summary  types.CoverageSummary `json:"summary"`
	Strategy coverage.Strategy     `json:"strategy,omitempty"`
	Next     []types.GoalCoverage  `json:"next,omitempty"`
}

func runCoverage(cmd *cobra.Command, args []string) error {
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

	var out coverageOutput
	if coverageRecord {
		out.Summary, err = a.selector.Progress(ctx)
	} else {
		out.Summary, err = a.selector.Current(ctx)
	}
	if err != nil {
		return err
	}

	if coverageNext > 0 {
		out.Strategy = a.strategy
		if coverageStrategy != "" {
			if out.Strategy, err = coverage.ParseStrategy(coverageStrategy); err != nil {
				return err
			}
		}
		if out.Next, err = a.selector.Select(ctx, out.Strategy, coverageNext); err != nil {
			return err
		}
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
