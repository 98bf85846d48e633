package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/export"
)

// AuditExporter publishes the audit report for a time window.
// Implemented by export.Exporter.
type AuditExporter interface {
	Export(ctx context.Context, since, until time.Time) (*export.Result, error)
}

// ExportCoordinator publishes audit reports on an interval. Each cycle
// covers the trailing window ending at the cycle time.
type ExportCoordinator struct {
	exporter AuditExporter
	interval time.Duration
	window   time.Duration
	now      func() time.Time
}

// NewExportCoordinator creates a coordinator. A non-positive window
// defaults to the interval.
func NewExportCoordinator(exporter AuditExporter, interval, window time.Duration) *ExportCoordinator {
	if window <= 0 {
		window = interval
	}
	return &ExportCoordinator{
		exporter: exporter,
		interval: interval,
		window:   window,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the coordinator loop.
func (c *ExportCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "export-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "export-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.exportWindow(ctx)
		}
	}
}

// exportWindow publishes one report. Failures are logged and retried on
// the next cycle; the audit rows stay in the store.
func (c *ExportCoordinator) exportWindow(ctx context.Context) bool {
	until := c.now()
	since := until.Add(-c.window)

	res, err := c.exporter.Export(ctx, since, until)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("audit export failed",
			"component", "worker",
			"worker", "export-coordinator",
			"action", "export_failed",
			"error", err,
		)
		return false
	}

	slog.Info("audit export completed",
		"component", "worker",
		"worker", "export-coordinator",
		"action", "export_complete",
		"key", res.Key,
		"events", res.Events,
		"uploaded", res.Uploaded,
	)
	return true
}
