package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/oklog/ulid/v2"
)

// RecordAuditEvent persists one audit event.
func (s *SQLiteStore) RecordAuditEvent(ctx context.Context, e audit.Event) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, kind, category, field, subject, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Kind), e.Category, e.Field, e.Subject, e.Detail, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns events created at or after since, oldest first.
// A non-positive limit returns every matching event.
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, since time.Time, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, kind, category, field, subject, detail, created_at
		FROM audit_events
		WHERE created_at >= ?
		ORDER BY created_at, id`
	args := []any{formatTime(since)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var e audit.Event
		var kind, createdAt string
		if err := rows.Scan(&e.ID, &kind, &e.Category, &e.Field, &e.Subject, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Kind = audit.Kind(kind)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AuditSummary counts events since the given time grouped by kind,
// category and field, most frequent first.
func (s *SQLiteStore) AuditSummary(ctx context.Context, since time.Time) ([]audit.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, category, field, COUNT(*) AS n
		FROM audit_events
		WHERE created_at >= ?
		GROUP BY kind, category, field
		ORDER BY n DESC, kind, category, field
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("audit summary: %w", err)
	}
	defer rows.Close()

	var out []audit.Summary
	for rows.Next() {
		var sum audit.Summary
		var kind string
		if err := rows.Scan(&kind, &sum.Category, &sum.Field, &sum.Count); err != nil {
			return nil, fmt.Errorf("scan audit summary: %w", err)
		}
		sum.Kind = audit.Kind(kind)
		out = append(out, sum)
	}
	return out, rows.Err()
}
