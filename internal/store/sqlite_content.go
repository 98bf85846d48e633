package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
	"github.com/oklog/ulid/v2"
)

// --- Solutions ---

const solutionColumns = `id, title, category, approved, provenance, created_at, updated_at`

func scanSolution(row interface{ Scan(...any) error }) (*types.Solution, error) {
	var sol types.Solution
	var approved int
	var cat, prov, createdAt, updatedAt string
	if err := row.Scan(&sol.ID, &sol.Title, &cat, &approved, &prov, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sol.Category = category.Category(cat)
	sol.Approved = approved == 1
	sol.Provenance = types.Provenance(prov)
	sol.CreatedAt = parseTime(createdAt)
	sol.UpdatedAt = parseTime(updatedAt)
	return &sol, nil
}

func (s *SQLiteStore) findSolution(ctx context.Context, title string, c category.Category) (*types.Solution, error) {
	return scanSolution(s.db.QueryRowContext(ctx,
		`SELECT `+solutionColumns+` FROM solutions WHERE title = ? COLLATE NOCASE AND category = ?`,
		title, string(c)))
}

// EnsureSolution resolves (title, category) to a single solution row,
// creating it on first encounter. Title comparison ignores case.
func (s *SQLiteStore) EnsureSolution(ctx context.Context, title string, c category.Category, provenance types.Provenance) (*types.Solution, bool, error) {
	title = strings.TrimSpace(title)
	if title == "" || c == "" {
		return nil, false, fmt.Errorf("ensure solution: %w: title and category required", ErrInvalidInput)
	}
	if provenance == "" {
		provenance = types.ProvenanceAIGenerated
	}

	sol, err := s.findSolution(ctx, title, c)
	if err == nil {
		return sol, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("ensure solution: lookup: %w", err)
	}

	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO solutions (id, title, category, approved, provenance, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, ulid.Make().String(), title, string(c), string(provenance), now, now)
	if err != nil {
		return nil, false, fmt.Errorf("ensure solution: insert: %w", err)
	}
	n, _ := res.RowsAffected()

	// Re-read so a concurrent writer's row wins
	sol, err = s.findSolution(ctx, title, c)
	if err != nil {
		return nil, false, fmt.Errorf("ensure solution: reload: %w", err)
	}
	return sol, n == 1, nil
}

// GetSolution retrieves a solution by ID.
func (s *SQLiteStore) GetSolution(ctx context.Context, id string) (*types.Solution, error) {
	sol, err := scanSolution(s.db.QueryRowContext(ctx, `SELECT `+solutionColumns+` FROM solutions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get solution: %w", err)
	}
	return sol, nil
}

// --- Variants ---

const variantColumns = `id, solution_id, variant_name, amount, unit, form, is_default, created_at`

func scanVariant(row interface{ Scan(...any) error }) (*types.Variant, error) {
	var v types.Variant
	var amount sql.NullFloat64
	var isDefault int
	var createdAt string
	if err := row.Scan(&v.ID, &v.SolutionID, &v.Name, &amount, &v.Unit, &v.Form, &isDefault, &createdAt); err != nil {
		return nil, err
	}
	if amount.Valid {
		a := amount.Float64
		v.Amount = &a
	}
	v.IsDefault = isDefault == 1
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

func (s *SQLiteStore) findVariant(ctx context.Context, solutionID, name string) (*types.Variant, error) {
	return scanVariant(s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM solution_variants WHERE solution_id = ? AND variant_name = ?`,
		solutionID, name))
}

// EnsureVariant resolves (solution_id, name) to a single variant row.
func (s *SQLiteStore) EnsureVariant(ctx context.Context, v types.Variant) (*types.Variant, bool, error) {
	if v.SolutionID == "" || v.Name == "" {
		return nil, false, fmt.Errorf("ensure variant: %w: solution id and name required", ErrInvalidInput)
	}

	got, err := s.findVariant(ctx, v.SolutionID, v.Name)
	if err == nil {
		return got, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("ensure variant: lookup: %w", err)
	}

	var amount any
	if v.Amount != nil {
		amount = *v.Amount
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO solution_variants (id, solution_id, variant_name, amount, unit, form, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (solution_id, variant_name) DO NOTHING
	`, ulid.Make().String(), v.SolutionID, v.Name, amount, v.Unit, v.Form, boolToInt(v.IsDefault), formatTime(s.now()))
	if err != nil {
		return nil, false, fmt.Errorf("ensure variant: insert: %w", err)
	}
	n, _ := res.RowsAffected()

	got, err = s.findVariant(ctx, v.SolutionID, v.Name)
	if err != nil {
		return nil, false, fmt.Errorf("ensure variant: reload: %w", err)
	}
	return got, n == 1, nil
}

// ListVariants returns all variants of a solution ordered by name.
func (s *SQLiteStore) ListVariants(ctx context.Context, solutionID string) ([]types.Variant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM solution_variants WHERE solution_id = ? ORDER BY variant_name`, solutionID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var out []types.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// --- Links ---

const linkColumns = `id, goal_id, variant_id, solution_id, effectiveness, rationale,
	solution_fields, raw_fields, aggregated_fields, quality_status, quality_score,
	quality_checked_at, created_at, updated_at`

func scanLink(row interface{ Scan(...any) error }) (*types.Link, error) {
	var l types.Link
	var fields, raw, agg, status, createdAt, updatedAt string
	var score sql.NullFloat64
	var checkedAt sql.NullString
	if err := row.Scan(&l.ID, &l.GoalID, &l.VariantID, &l.SolutionID, &l.Effectiveness, &l.Rationale,
		&fields, &raw, &agg, &status, &score, &checkedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &l.Fields); err != nil {
		return nil, fmt.Errorf("decode solution_fields: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &l.RawFields); err != nil {
		return nil, fmt.Errorf("decode raw_fields: %w", err)
	}
	if err := json.Unmarshal([]byte(agg), &l.AggregatedFields); err != nil {
		return nil, fmt.Errorf("decode aggregated_fields: %w", err)
	}
	l.QualityStatus = types.QualityStatus(status)
	if score.Valid {
		v := score.Float64
		l.QualityScore = &v
	}
	l.QualityCheckedAt = parseNullTime(checkedAt)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

func encodeJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

type linkPayload struct {
	fields, raw, agg string
}

func encodeLink(l types.Link) (linkPayload, error) {
	var p linkPayload
	var err error
	if p.fields, err = encodeJSON(l.Fields, "{}"); err != nil {
		return p, fmt.Errorf("encode solution_fields: %w", err)
	}
	if p.raw, err = encodeJSON(l.RawFields, "{}"); err != nil {
		return p, fmt.Errorf("encode raw_fields: %w", err)
	}
	if p.agg, err = encodeJSON(l.AggregatedFields, "{}"); err != nil {
		return p, fmt.Errorf("encode aggregated_fields: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) findLink(ctx context.Context, goalID, variantID string) (*types.Link, error) {
	return scanLink(s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM goal_implementation_links WHERE goal_id = ? AND variant_id = ?`,
		goalID, variantID))
}

// UpsertLink writes the link for (goal_id, variant_id). An existing link is
// updated in place and returned to the pending quality state.
func (s *SQLiteStore) UpsertLink(ctx context.Context, l types.Link) (*types.Link, bool, error) {
	if l.GoalID == "" || l.VariantID == "" || l.SolutionID == "" {
		return nil, false, fmt.Errorf("upsert link: %w: goal, variant and solution ids required", ErrInvalidInput)
	}
	p, err := encodeLink(l)
	if err != nil {
		return nil, false, fmt.Errorf("upsert link: %w", err)
	}
	now := formatTime(s.now())

	existing, err := s.findLink(ctx, l.GoalID, l.VariantID)
	switch {
	case err == nil:
		if err := s.updateLink(ctx, existing.ID, l, p, now, true); err != nil {
			return nil, false, err
		}
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO goal_implementation_links (id, goal_id, variant_id, solution_id, effectiveness, rationale,
				solution_fields, raw_fields, aggregated_fields, quality_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
			ON CONFLICT (goal_id, variant_id) DO NOTHING
		`, ulid.Make().String(), l.GoalID, l.VariantID, l.SolutionID, l.Effectiveness, l.Rationale,
			p.fields, p.raw, p.agg, now, now)
		if err != nil {
			return nil, false, fmt.Errorf("upsert link: insert: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Lost a race with another writer; fall through to update
			existing, err = s.findLink(ctx, l.GoalID, l.VariantID)
			if err != nil {
				return nil, false, fmt.Errorf("upsert link: reload: %w", err)
			}
			if err := s.updateLink(ctx, existing.ID, l, p, now, true); err != nil {
				return nil, false, err
			}
		} else {
			got, err := s.findLink(ctx, l.GoalID, l.VariantID)
			if err != nil {
				return nil, false, fmt.Errorf("upsert link: reload: %w", err)
			}
			return got, true, nil
		}
	default:
		return nil, false, fmt.Errorf("upsert link: lookup: %w", err)
	}

	got, err := s.findLink(ctx, l.GoalID, l.VariantID)
	if err != nil {
		return nil, false, fmt.Errorf("upsert link: reload: %w", err)
	}
	return got, false, nil
}

func (s *SQLiteStore) updateLink(ctx context.Context, id string, l types.Link, p linkPayload, now string, resetQuality bool) error {
	query := `
		UPDATE goal_implementation_links
		SET effectiveness = ?, rationale = ?, solution_fields = ?, raw_fields = ?,
			aggregated_fields = ?, updated_at = ?`
	if resetQuality {
		query += `, quality_status = 'pending', quality_score = NULL, quality_checked_at = NULL`
	}
	query += ` WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query, l.Effectiveness, l.Rationale, p.fields, p.raw, p.agg, now, id)
	if err != nil {
		return fmt.Errorf("update link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLinkFields rewrites a link's field maps by ID without touching its
// quality status. Used when applying quality fixes.
func (s *SQLiteStore) UpdateLinkFields(ctx context.Context, l types.Link) error {
	p, err := encodeLink(l)
	if err != nil {
		return fmt.Errorf("update link fields: %w", err)
	}
	return s.updateLink(ctx, l.ID, l, p, formatTime(s.now()), false)
}

// GetLink retrieves a link by ID.
func (s *SQLiteStore) GetLink(ctx context.Context, id string) (*types.Link, error) {
	l, err := scanLink(s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM goal_implementation_links WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

// ListLinksForGoal returns every link attached to a goal.
func (s *SQLiteStore) ListLinksForGoal(ctx context.Context, goalID string) ([]types.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM goal_implementation_links WHERE goal_id = ? ORDER BY created_at, id`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var out []types.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// --- Distributions ---

// UpsertDistribution writes the distribution for (solution, goal, field),
// updating in place when present. Reports whether a row was created.
func (s *SQLiteStore) UpsertDistribution(ctx context.Context, fd types.FieldDistribution) (bool, error) {
	if fd.SolutionID == "" || fd.GoalID == "" || fd.FieldName == "" {
		return false, fmt.Errorf("upsert distribution: %w: solution, goal and field required", ErrInvalidInput)
	}
	values, err := encodeJSON(fd.Distribution.Values, "[]")
	if err != nil {
		return false, fmt.Errorf("upsert distribution: encode: %w", err)
	}
	now := formatTime(s.now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE field_distributions
		SET mode = ?, distribution = ?, total_reports = ?, updated_at = ?
		WHERE solution_id = ? AND goal_id = ? AND field_name = ?
	`, fd.Distribution.Mode, values, fd.Distribution.TotalReports, now, fd.SolutionID, fd.GoalID, fd.FieldName)
	if err != nil {
		return false, fmt.Errorf("upsert distribution: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	res, err = s.db.ExecContext(ctx, `
		INSERT INTO field_distributions (id, solution_id, goal_id, field_name, mode, distribution, total_reports, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (solution_id, goal_id, field_name) DO UPDATE SET
			mode = excluded.mode,
			distribution = excluded.distribution,
			total_reports = excluded.total_reports,
			updated_at = excluded.updated_at
	`, ulid.Make().String(), fd.SolutionID, fd.GoalID, fd.FieldName, fd.Distribution.Mode, values,
		fd.Distribution.TotalReports, now)
	if err != nil {
		return false, fmt.Errorf("upsert distribution: insert: %w", err)
	}
	return true, nil
}

// ListDistributions returns the distributions for a (solution, goal) pair
// ordered by field name.
func (s *SQLiteStore) ListDistributions(ctx context.Context, solutionID, goalID string) ([]types.FieldDistribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, solution_id, goal_id, field_name, mode, distribution, total_reports, updated_at
		FROM field_distributions
		WHERE solution_id = ? AND goal_id = ?
		ORDER BY field_name
	`, solutionID, goalID)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var out []types.FieldDistribution
	for rows.Next() {
		var fd types.FieldDistribution
		var values, updatedAt string
		if err := rows.Scan(&fd.ID, &fd.SolutionID, &fd.GoalID, &fd.FieldName, &fd.Distribution.Mode,
			&values, &fd.Distribution.TotalReports, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		if err := json.Unmarshal([]byte(values), &fd.Distribution.Values); err != nil {
			return nil, fmt.Errorf("decode distribution: %w", err)
		}
		fd.UpdatedAt = parseTime(updatedAt)
		out = append(out, fd)
	}
	return out, rows.Err()
}
