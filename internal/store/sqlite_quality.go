package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
	"github.com/oklog/ulid/v2"
)

// --- Coverage ---

// CoverageSnapshot returns, for every goal, the number of distinct solutions
// linked to it split by provenance. Links that failed quality review are
// not counted.
func (s *SQLiteStore) CoverageSnapshot(ctx context.Context) ([]types.GoalCoverage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.title, g.description, g.arena, g.category, g.user_interest, g.created_at,
			COALESCE(SUM(CASE WHEN s.provenance = 'ai_generated' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN s.provenance = 'user_submitted' THEN 1 ELSE 0 END), 0)
		FROM goals g
		LEFT JOIN (
			SELECT DISTINCT goal_id, solution_id
			FROM goal_implementation_links
			WHERE quality_status != 'failed'
		) gl ON gl.goal_id = g.id
		LEFT JOIN solutions s ON s.id = gl.solution_id
		GROUP BY g.id
		ORDER BY g.title COLLATE NOCASE
	`)
	if err != nil {
		return nil, fmt.Errorf("coverage snapshot: %w", err)
	}
	defer rows.Close()

	var out []types.GoalCoverage
	for rows.Next() {
		var gc types.GoalCoverage
		var createdAt string
		if err := rows.Scan(&gc.Goal.ID, &gc.Goal.Title, &gc.Goal.Description, &gc.Goal.Arena, &gc.Goal.Category,
			&gc.Goal.UserInterest, &createdAt, &gc.AIGenerated, &gc.UserSubmitted); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		gc.Goal.CreatedAt = parseTime(createdAt)
		out = append(out, gc)
	}
	return out, rows.Err()
}

// SaveCoverageSummary persists a progress summary for reporting.
func (s *SQLiteStore) SaveCoverageSummary(ctx context.Context, sum types.CoverageSummary) error {
	if sum.RecordedAt.IsZero() {
		sum.RecordedAt = s.now()
	}
	b, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode coverage summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO coverage_progress (id, recorded_at, summary) VALUES (?, ?, ?)`,
		ulid.Make().String(), formatTime(sum.RecordedAt), string(b))
	if err != nil {
		return fmt.Errorf("save coverage summary: %w", err)
	}
	return nil
}

// LatestCoverageSummary returns the most recently saved summary.
func (s *SQLiteStore) LatestCoverageSummary(ctx context.Context) (*types.CoverageSummary, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM coverage_progress ORDER BY recorded_at DESC, id DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest coverage summary: %w", err)
	}
	var sum types.CoverageSummary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return nil, fmt.Errorf("decode coverage summary: %w", err)
	}
	return &sum, nil
}

// --- Quality ---

// PendingQualityItems returns up to limit links awaiting review, oldest first.
func (s *SQLiteStore) PendingQualityItems(ctx context.Context, limit int) ([]types.QualityItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.goal_id, g.title, l.solution_id, s.title, s.category, l.effectiveness,
			l.solution_fields, l.raw_fields
		FROM goal_implementation_links l
		JOIN goals g ON g.id = l.goal_id
		JOIN solutions s ON s.id = l.solution_id
		WHERE l.quality_status = 'pending'
		ORDER BY l.created_at, l.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending quality items: %w", err)
	}
	defer rows.Close()

	var out []types.QualityItem
	for rows.Next() {
		var it types.QualityItem
		var cat, fields, raw string
		if err := rows.Scan(&it.LinkID, &it.GoalID, &it.GoalTitle, &it.SolutionID, &it.SolutionTitle, &cat,
			&it.Effectiveness, &fields, &raw); err != nil {
			return nil, fmt.Errorf("scan quality item: %w", err)
		}
		it.Category = category.Category(cat)
		if err := json.Unmarshal([]byte(fields), &it.Fields); err != nil {
			return nil, fmt.Errorf("decode solution_fields: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &it.RawFields); err != nil {
			return nil, fmt.Errorf("decode raw_fields: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CountPendingQuality returns the number of links awaiting review.
func (s *SQLiteStore) CountPendingQuality(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM goal_implementation_links WHERE quality_status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending quality: %w", err)
	}
	return n, nil
}

// ApplyQualityVerdict records the review outcome for a link.
func (s *SQLiteStore) ApplyQualityVerdict(ctx context.Context, linkID string, status types.QualityStatus, score float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE goal_implementation_links
		SET quality_status = ?, quality_score = ?, quality_checked_at = ?
		WHERE id = ?
	`, string(status), score, formatTime(s.now()), linkID)
	if err != nil {
		return fmt.Errorf("apply quality verdict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// StartQualityRun records the start of an orchestrator run.
func (s *SQLiteStore) StartQualityRun(ctx context.Context) (*types.QualityRun, error) {
	run := types.QualityRun{
		ID:        ulid.Make().String(),
		Status:    "running",
		StartedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quality_runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Status, formatTime(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("start quality run: %w", err)
	}
	return &run, nil
}

// FinishQualityRun stores the final status and spend of a run.
func (s *SQLiteStore) FinishQualityRun(ctx context.Context, run types.QualityRun) error {
	finished := s.now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE quality_runs
		SET status = ?, finished_at = ?, spend = ?, batches = ?, items = ?
		WHERE id = ?
	`, run.Status, formatTime(finished), run.Spend, run.Batches, run.Items, run.ID)
	if err != nil {
		return fmt.Errorf("finish quality run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestQualityRun returns the most recently started run.
func (s *SQLiteStore) LatestQualityRun(ctx context.Context) (*types.QualityRun, error) {
	var run types.QualityRun
	var startedAt string
	var finishedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, started_at, finished_at, spend, batches, items
		FROM quality_runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Status, &startedAt, &finishedAt, &run.Spend, &run.Batches, &run.Items)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest quality run: %w", err)
	}
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseNullTime(finishedAt)
	return &run, nil
}

// QualitySpendSince sums the spend of runs started at or after since.
func (s *SQLiteStore) QualitySpendSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(spend), 0) FROM quality_runs WHERE started_at >= ?`,
		formatTime(since)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("quality spend: %w", err)
	}
	return total, nil
}
