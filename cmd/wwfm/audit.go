package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/export"
	"github.com/spf13/cobra"
)

var (
	auditSince  string
	auditWindow time.Duration
	auditOut    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail commands",
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit events for a window as a JSON report",
	Long: `Builds an audit report covering [since, now). With --out the report is
written to a local file; otherwise it is uploaded to the configured bucket.`,
	RunE: runAuditExport,
}

func init() {
	auditExportCmd.Flags().StringVar(&auditSince, "since", "", "window start as RFC 3339 (default now minus --window)")
	auditExportCmd.Flags().DurationVar(&auditWindow, "window", 24*time.Hour, "window length when --since is not set")
	auditExportCmd.Flags().StringVar(&auditOut, "out", "", "write the report to this file instead of uploading")
	auditCmd.AddCommand(auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}

// exportWindow resolves the [since, until) window from the flags.
func exportWindow(now time.Time, since string, window time.Duration) (time.Time, time.Time, error) {
	until := now.UTC()
	if since == "" {
		if window <= 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("window must be positive, got %s", window)
		}
		return until.Add(-window), until, nil
	}
	t, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("since must be RFC 3339: %w", err)
	}
	if !t.Before(until) {
		return time.Time{}, time.Time{}, fmt.Errorf("since %s is not in the past", since)
	}
	return t.UTC(), until, nil
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	since, until, err := exportWindow(time.Now(), auditSince, auditWindow)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if auditOut != "" {
		report, err := a.exporter.Build(ctx, since, until)
		if err != nil {
			return err
		}
		f, err := os.Create(auditOut)
		if err != nil {
			return err
		}
		if err := export.Write(f, report); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), &export.Result{
			ReportID: report.ID,
			Key:      auditOut,
			Events:   len(report.Events),
		})
	}

	res, err := a.exporter.Export(ctx, since, until)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}
