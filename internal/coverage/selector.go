package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/metrics"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// Source provides the live coverage snapshot.
type Source interface {
	CoverageSnapshot(ctx context.Context) ([]types.GoalCoverage, error)
}

// ProgressSink persists progress summaries.
type ProgressSink interface {
	SaveCoverageSummary(ctx context.Context, sum types.CoverageSummary) error
}

// SnapshotStore combines the snapshot source and the progress sink.
// Implemented by store.SQLiteStore.
type SnapshotStore interface {
	Source
	ProgressSink
}

// Selector chooses goals from the live snapshot on every call.
type Selector struct {
	store SnapshotStore
	opts  Options
	now   func() time.Time
}

// NewSelector creates a Selector. Thresholds are validated up front.
func NewSelector(s SnapshotStore, opts Options) (*Selector, error) {
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Selector{store: s, opts: opts, now: time.Now}, nil
}

// Options returns the selector's options.
func (s *Selector) Options() Options {
	return s.opts
}

// Select loads a fresh snapshot and applies the strategy.
func (s *Selector) Select(ctx context.Context, strategy Strategy, n int) ([]types.GoalCoverage, error) {
	snapshot, err := s.store.CoverageSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load coverage snapshot: %w", err)
	}
	goals, err := SelectFrom(snapshot, strategy, n, s.opts)
	if err != nil {
		return nil, err
	}

	metrics.GoalsSelected.WithLabelValues(string(strategy)).Add(float64(len(goals)))
	slog.Info("goals selected",
		"component", "coverage",
		"strategy", string(strategy),
		"requested", n,
		"selected", len(goals),
		"snapshot_goals", len(snapshot),
	)
	return goals, nil
}

// Current computes a summary from a fresh snapshot without persisting it.
func (s *Selector) Current(ctx context.Context) (types.CoverageSummary, error) {
	snapshot, err := s.store.CoverageSnapshot(ctx)
	if err != nil {
		return types.CoverageSummary{}, fmt.Errorf("load coverage snapshot: %w", err)
	}
	return Summarize(snapshot, s.opts.Thresholds, s.now()), nil
}

// Progress computes a summary from a fresh snapshot and persists it.
func (s *Selector) Progress(ctx context.Context) (types.CoverageSummary, error) {
	sum, err := s.Current(ctx)
	if err != nil {
		return sum, err
	}
	if err := s.store.SaveCoverageSummary(ctx, sum); err != nil {
		return sum, fmt.Errorf("persist coverage summary: %w", err)
	}
	return sum, nil
}
