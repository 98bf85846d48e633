package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/pipeline"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// GenerationRunner executes one generation pass.
// Implemented by pipeline.Runner.
type GenerationRunner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.RunReport, error)
}

// ProgressRecorder persists a coverage progress summary.
// Implemented by coverage.Selector.
type ProgressRecorder interface {
	Progress(ctx context.Context) (types.CoverageSummary, error)
}

// GenerationCoordinator runs generation passes on an interval and records
// coverage progress after each pass.
type GenerationCoordinator struct {
	runner   GenerationRunner
	progress ProgressRecorder
	interval time.Duration
	opts     pipeline.RunOptions

	mu      sync.Mutex
	running bool
	last    *pipeline.RunReport
}

// NewGenerationCoordinator creates a coordinator. progress is optional.
func NewGenerationCoordinator(runner GenerationRunner, progress ProgressRecorder, interval time.Duration, opts pipeline.RunOptions) *GenerationCoordinator {
	return &GenerationCoordinator{
		runner:   runner,
		progress: progress,
		interval: interval,
		opts:     opts,
	}
}

// Run starts the coordinator loop. The first pass waits for one interval.
func (c *GenerationCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "generation-coordinator",
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
				"worker", "generation-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			if _, err := c.RunOnce(ctx, c.opts); err != nil && ctx.Err() == nil {
				slog.Warn("generation pass failed",
					"component", "worker",
					"worker", "generation-coordinator",
					"action", "pass_failed",
					"error", err,
				)
			}
		}
	}
}

// RunOnce executes a single pass. Concurrent passes are refused with
// ErrAlreadyRunning.
func (c *GenerationCoordinator) RunOnce(ctx context.Context, opts pipeline.RunOptions) (*pipeline.RunReport, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	report, err := c.runner.Run(ctx, opts)
	if report != nil {
		c.mu.Lock()
		c.last = report
		c.mu.Unlock()
	}
	if err != nil {
		return report, err
	}

	if c.progress != nil && !opts.DryRun {
		sum, perr := c.progress.Progress(ctx)
		if perr != nil {
			slog.Warn("coverage progress not recorded",
				"component", "worker",
				"worker", "generation-coordinator",
				"action", "progress_failed",
				"error", perr,
			)
		} else {
			slog.Info("coverage progress recorded",
				"component", "worker",
				"worker", "generation-coordinator",
				"action", "progress_recorded",
				"total_goals", sum.TotalGoals,
				"completion", sum.Completion,
			)
		}
	}
	return report, nil
}

// LastReport returns the report of the most recent pass, or nil.
func (c *GenerationCoordinator) LastReport() *pipeline.RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
