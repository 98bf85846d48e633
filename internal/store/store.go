package store

import (
	"context"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// Store defines the contract for all persistence operations. Every write
// is keyed on a natural key so that repeated calls converge on one row.
type Store interface {
	// Goals
	EnsureGoal(ctx context.Context, g types.Goal) (*types.Goal, bool, error)
	GetGoal(ctx context.Context, id string) (*types.Goal, error)
	ListGoals(ctx context.Context) ([]types.Goal, error)

	// Canonical content
	EnsureSolution(ctx context.Context, title string, c category.Category, provenance types.Provenance) (*types.Solution, bool, error)
	EnsureVariant(ctx context.Context, v types.Variant) (*types.Variant, bool, error)
	UpsertLink(ctx context.Context, l types.Link) (*types.Link, bool, error)
	UpdateLinkFields(ctx context.Context, l types.Link) error
	GetLink(ctx context.Context, id string) (*types.Link, error)
	UpsertDistribution(ctx context.Context, fd types.FieldDistribution) (bool, error)
	ListDistributions(ctx context.Context, solutionID, goalID string) ([]types.FieldDistribution, error)

	// Coverage
	CoverageSnapshot(ctx context.Context) ([]types.GoalCoverage, error)
	SaveCoverageSummary(ctx context.Context, s types.CoverageSummary) error
	LatestCoverageSummary(ctx context.Context) (*types.CoverageSummary, error)

	// Quality
	PendingQualityItems(ctx context.Context, limit int) ([]types.QualityItem, error)
	CountPendingQuality(ctx context.Context) (int64, error)
	ApplyQualityVerdict(ctx context.Context, linkID string, status types.QualityStatus, score float64) error
	StartQualityRun(ctx context.Context) (*types.QualityRun, error)
	FinishQualityRun(ctx context.Context, run types.QualityRun) error
	LatestQualityRun(ctx context.Context) (*types.QualityRun, error)
	QualitySpendSince(ctx context.Context, since time.Time) (float64, error)

	// Audit
	RecordAuditEvent(ctx context.Context, e audit.Event) error
	ListAuditEvents(ctx context.Context, since time.Time, limit int) ([]audit.Event, error)
	AuditSummary(ctx context.Context, since time.Time) ([]audit.Summary, error)

	GetStats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}
