package main

import (
	"github.com/spf13/cobra"
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Quality orchestrator commands",
}

var qualityRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one quality pass over pending links and print the run record",
	RunE:  runQuality,
}

func init() {
	qualityCmd.AddCommand(qualityRunCmd)
	rootCmd.AddCommand(qualityCmd)
}

func runQuality(cmd *cobra.Command, args []string) error {
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

	run, err := a.quality.RunOnce(ctx)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), run)
}
