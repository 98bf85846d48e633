package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/metrics"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// OrchestratorState is the state of the quality orchestrator.
type OrchestratorState string

const (
	StateIdle    OrchestratorState = "idle"
	StateRunning OrchestratorState = "running"
	StateHalted  OrchestratorState = "halted"
)

// Run outcomes persisted on the quality run record.
const (
	RunDrained = "drained"
	RunStopped = "stopped"
	RunHalted  = "halted"
	RunAborted = "aborted"
)

// QualityChecker reviews a batch of persisted items.
type QualityChecker interface {
	Check(ctx context.Context, items []types.QualityItem) (*types.QualityReport, error)
}

// Fixer applies corrected field values to a persisted link.
// Implemented by inserter.Inserter.
type Fixer interface {
	ApplyFix(ctx context.Context, item types.QualityItem, fixes map[string]string) error
}

// QualityStore is the subset of the store used by the orchestrator.
type QualityStore interface {
	PendingQualityItems(ctx context.Context, limit int) ([]types.QualityItem, error)
	CountPendingQuality(ctx context.Context) (int64, error)
	ApplyQualityVerdict(ctx context.Context, linkID string, status types.QualityStatus, score float64) error
	StartQualityRun(ctx context.Context) (*types.QualityRun, error)
	FinishQualityRun(ctx context.Context, run types.QualityRun) error
	QualitySpendSince(ctx context.Context, since time.Time) (float64, error)
}

// QualityConfig holds the orchestrator settings. Every field is required.
type QualityConfig struct {
	BatchSize          int
	TriggerThreshold   int
	PollInterval       time.Duration
	RunInterval        time.Duration
	ScoreThreshold     float64
	MaxSpendPerRun     float64
	MaxSpendPerDay     float64
	EstimatedBatchCost float64
}

func (c QualityConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	case c.TriggerThreshold <= 0:
		return fmt.Errorf("%w: trigger threshold must be positive", ErrInvalidConfig)
	case c.PollInterval <= 0 || c.RunInterval <= 0:
		return fmt.Errorf("%w: poll and run intervals must be positive", ErrInvalidConfig)
	case c.ScoreThreshold <= 0:
		return fmt.Errorf("%w: score threshold must be positive", ErrInvalidConfig)
	case c.MaxSpendPerRun <= 0 || c.MaxSpendPerDay <= 0:
		return fmt.Errorf("%w: spend limits must be positive", ErrInvalidConfig)
	case c.EstimatedBatchCost <= 0:
		return fmt.Errorf("%w: estimated batch cost must be positive", ErrInvalidConfig)
	}
	return nil
}

// QualityStatus is a point-in-time view of the orchestrator.
type QualityStatus struct {
	State   OrchestratorState `json:"state"`
	LastRun *types.QualityRun `json:"last_run,omitempty"`
	LastErr string            `json:"last_error,omitempty"`
}

// QualityOrchestrator pulls pending links in batches, sends them to the
// quality checker and applies the verdicts while staying inside budget.
type QualityOrchestrator struct {
	store    QualityStore
	checker  QualityChecker
	fixer    Fixer
	recorder audit.Recorder
	cfg      QualityConfig
	now      func() time.Time

	trigger chan struct{}
	stop    atomic.Bool

	mu      sync.Mutex
	state   OrchestratorState
	lastRun *types.QualityRun
	lastErr error
	lastAt  time.Time
}

// NewQualityOrchestrator creates an orchestrator in the idle state.
func NewQualityOrchestrator(store QualityStore, checker QualityChecker, fixer Fixer, recorder audit.Recorder, cfg QualityConfig) (*QualityOrchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &QualityOrchestrator{
		store:    store,
		checker:  checker,
		fixer:    fixer,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		state:    StateIdle,
	}, nil
}

// Status returns the current state and the last finished run.
func (o *QualityOrchestrator) Status() QualityStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := QualityStatus{State: o.state, LastRun: o.lastRun}
	if o.lastErr != nil {
		st.LastErr = o.lastErr.Error()
	}
	return st
}

// Trigger requests a run at the next opportunity. Repeated triggers before
// the run starts collapse into one.
func (o *QualityOrchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Stop asks an active run to finish its in-flight batch and return to idle.
// It is a no-op when no run is active.
func (o *QualityOrchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		o.stop.Store(true)
	}
}

// Run starts the orchestrator loop. A run starts on trigger, when the
// pending count reaches the trigger threshold, or when the run interval has
// elapsed since the last run.
func (o *QualityOrchestrator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "quality-orchestrator",
		"action", "worker_started",
		"poll_interval", o.cfg.PollInterval.String(),
		"run_interval", o.cfg.RunInterval.String(),
	)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	o.mu.Lock()
	o.lastAt = o.now()
	o.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "quality-orchestrator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-o.trigger:
			o.runLogged(ctx, "trigger")
		case <-ticker.C:
			if reason, ok := o.due(ctx); ok {
				o.runLogged(ctx, reason)
			}
		}
	}
}

// due reports whether a scheduled or threshold run should start. A halted
// orchestrator ignores the threshold until the run interval has elapsed or
// a manual trigger arrives.
func (o *QualityOrchestrator) due(ctx context.Context) (string, bool) {
	o.mu.Lock()
	elapsed := o.now().Sub(o.lastAt)
	halted := o.state == StateHalted
	o.mu.Unlock()
	if elapsed >= o.cfg.RunInterval {
		return "interval", true
	}
	if halted {
		return "", false
	}

	pending, err := o.store.CountPendingQuality(ctx)
	if err != nil {
		slog.Warn("failed to count pending quality items",
			"component", "worker",
			"worker", "quality-orchestrator",
			"action", "poll_failed",
			"error", err,
		)
		return "", false
	}
	if pending >= int64(o.cfg.TriggerThreshold) {
		return "threshold", true
	}
	return "", false
}

func (o *QualityOrchestrator) runLogged(ctx context.Context, reason string) {
	run, err := o.RunOnce(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Warn("quality run ended with error",
			"component", "worker",
			"worker", "quality-orchestrator",
			"action", "run_failed",
			"reason", reason,
			"run_id", run.ID,
			"status", run.Status,
			"error", err,
		)
		return
	}
	slog.Info("quality run completed",
		"component", "worker",
		"worker", "quality-orchestrator",
		"action", "run_complete",
		"reason", reason,
		"run_id", run.ID,
		"status", run.Status,
		"batches", run.Batches,
		"items", run.Items,
		"spend", run.Spend,
	)
}

// RunOnce performs a single run until the queue drains, the budget would be
// exceeded, the checker fails, or Stop is called.
func (o *QualityOrchestrator) RunOnce(ctx context.Context) (types.QualityRun, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return types.QualityRun{}, ErrAlreadyRunning
	}
	o.state = StateRunning
	o.stop.Store(false)
	o.mu.Unlock()

	run, err := o.process(ctx)

	o.mu.Lock()
	if run.Status == RunHalted {
		o.state = StateHalted
	} else {
		o.state = StateIdle
	}
	o.lastRun = &run
	o.lastErr = err
	o.lastAt = o.now()
	o.mu.Unlock()

	metrics.QualityRuns.WithLabelValues(run.Status).Inc()
	return run, err
}

func (o *QualityOrchestrator) process(ctx context.Context) (types.QualityRun, error) {
	started, err := o.store.StartQualityRun(ctx)
	if err != nil {
		return types.QualityRun{Status: RunAborted}, fmt.Errorf("start quality run: %w", err)
	}
	run := *started

	now := o.now().UTC()
	daySpent, err := o.store.QualitySpendSince(ctx, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
	if err != nil {
		run.Status = RunAborted
		o.finish(ctx, &run)
		return run, fmt.Errorf("load daily spend: %w", err)
	}

	seen := make(map[string]bool)
	var runErr error
	for {
		if ctx.Err() != nil || o.stop.Load() {
			run.Status = RunStopped
			break
		}

		est := o.cfg.EstimatedBatchCost
		if run.Spend+est > o.cfg.MaxSpendPerRun || daySpent+run.Spend+est > o.cfg.MaxSpendPerDay {
			run.Status = RunHalted
			runErr = fmt.Errorf("%w: run spend %.4f, day spend %.4f, next batch estimate %.4f",
				ErrBudgetExceeded, run.Spend, daySpent+run.Spend, est)
			o.recorder.Record(ctx, audit.Event{
				Kind:    audit.KindBudgetExceeded,
				Subject: run.ID,
				Detail:  runErr.Error(),
			})
			break
		}

		batch, err := o.nextBatch(ctx, seen)
		if err != nil {
			run.Status = RunAborted
			runErr = err
			break
		}
		if len(batch) == 0 {
			run.Status = RunDrained
			break
		}

		report, err := o.checker.Check(ctx, batch)
		if err != nil {
			// The call may still have been billed.
			o.charge(&run, est)
			run.Status = RunAborted
			runErr = fmt.Errorf("%w: %w", ErrCheckerUnavailable, err)
			o.recorder.Record(ctx, audit.Event{
				Kind:    audit.KindCheckerUnavailable,
				Subject: run.ID,
				Detail:  err.Error(),
			})
			break
		}

		cost := est
		if report.Cost != nil {
			cost = *report.Cost
		}
		o.charge(&run, cost)

		o.applyVerdicts(ctx, batch, report.Verdicts)
		run.Batches++
		run.Items += len(batch)
	}

	o.finish(ctx, &run)
	return run, runErr
}

// nextBatch returns up to BatchSize pending items not yet handled in this
// run. Items the checker skipped stay pending for the next run.
func (o *QualityOrchestrator) nextBatch(ctx context.Context, seen map[string]bool) ([]types.QualityItem, error) {
	items, err := o.store.PendingQualityItems(ctx, o.cfg.BatchSize+len(seen))
	if err != nil {
		return nil, fmt.Errorf("load pending items: %w", err)
	}
	batch := make([]types.QualityItem, 0, o.cfg.BatchSize)
	for _, it := range items {
		if seen[it.LinkID] {
			continue
		}
		seen[it.LinkID] = true
		batch = append(batch, it)
		if len(batch) == o.cfg.BatchSize {
			break
		}
	}
	return batch, nil
}

func (o *QualityOrchestrator) charge(run *types.QualityRun, cost float64) {
	if cost < 0 {
		cost = 0
	}
	run.Spend += cost
	metrics.QualitySpend.Add(cost)
}

func (o *QualityOrchestrator) applyVerdicts(ctx context.Context, batch []types.QualityItem, verdicts []types.QualityVerdict) {
	items := make(map[string]types.QualityItem, len(batch))
	for _, it := range batch {
		items[it.LinkID] = it
	}

	for _, v := range verdicts {
		item, ok := items[v.LinkID]
		if !ok {
			slog.Warn("verdict for unknown link ignored",
				"component", "worker",
				"worker", "quality-orchestrator",
				"link_id", v.LinkID,
			)
			continue
		}
		delete(items, v.LinkID)

		status, score := o.classify(ctx, item, v)
		if err := o.store.ApplyQualityVerdict(ctx, item.LinkID, status, score); err != nil {
			slog.Error("failed to apply quality verdict",
				"component", "worker",
				"worker", "quality-orchestrator",
				"link_id", item.LinkID,
				"verdict", string(v.Verdict),
				"error", err,
			)
			continue
		}
		metrics.QualityVerdicts.WithLabelValues(string(status)).Inc()
	}
}

// classify maps a checker verdict to a stored status. A pass whose average
// score is below threshold is stored as failed.
func (o *QualityOrchestrator) classify(ctx context.Context, item types.QualityItem, v types.QualityVerdict) (types.QualityStatus, float64) {
	score := v.AverageScore()
	switch v.Verdict {
	case types.VerdictPass:
		if score >= o.cfg.ScoreThreshold {
			return types.QualityPassed, score
		}
		return types.QualityFailed, score
	case types.VerdictFix:
		if err := o.fixer.ApplyFix(ctx, item, v.Fixes); err != nil {
			slog.Warn("quality fix could not be applied",
				"component", "worker",
				"worker", "quality-orchestrator",
				"link_id", item.LinkID,
				"error", err,
			)
			return types.QualityFailed, score
		}
		return types.QualityFixed, score
	default:
		return types.QualityFailed, score
	}
}

func (o *QualityOrchestrator) finish(ctx context.Context, run *types.QualityRun) {
	finished := o.now()
	run.FinishedAt = &finished
	// The record is written even when ctx was cancelled by Stop or shutdown.
	if err := o.store.FinishQualityRun(context.WithoutCancel(ctx), *run); err != nil {
		slog.Error("failed to record quality run",
			"component", "worker",
			"worker", "quality-orchestrator",
			"run_id", run.ID,
			"error", err,
		)
	}
}
