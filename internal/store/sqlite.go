package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Compile-time check that SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite-backed canonical content store.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to :memory: is a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable pragmas for performance and safety
	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	// Run goose migrations
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// IsTransient reports whether err is a lock or busy condition worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Goals ---

const goalColumns = `id, title, description, arena, category, user_interest, created_at`

func scanGoal(row interface{ Scan(...any) error }) (*types.Goal, error) {
	var g types.Goal
	var createdAt string
	if err := row.Scan(&g.ID, &g.Title, &g.Description, &g.Arena, &g.Category, &g.UserInterest, &createdAt); err != nil {
		return nil, err
	}
	g.CreatedAt = parseTime(createdAt)
	return &g, nil
}

// EnsureGoal returns the goal with the same title, creating it if absent.
// An existing goal's arena, category, description and interest are refreshed.
func (s *SQLiteStore) EnsureGoal(ctx context.Context, g types.Goal) (*types.Goal, bool, error) {
	title := strings.TrimSpace(g.Title)
	if title == "" {
		return nil, false, fmt.Errorf("ensure goal: %w: empty title", ErrInvalidInput)
	}

	id := g.ID
	if id == "" {
		id = ulid.Make().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, title, description, arena, category, user_interest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (title COLLATE NOCASE) DO UPDATE SET
			description = excluded.description,
			arena = excluded.arena,
			category = excluded.category,
			user_interest = excluded.user_interest
	`, id, title, g.Description, g.Arena, g.Category, g.UserInterest, formatTime(s.now()))
	if err != nil {
		return nil, false, fmt.Errorf("ensure goal: %w", err)
	}

	got, err := scanGoal(s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE title = ? COLLATE NOCASE`, title))
	if err != nil {
		return nil, false, fmt.Errorf("ensure goal: reload: %w", err)
	}
	return got, got.ID == id, nil
}

// GetGoal retrieves a goal by ID.
func (s *SQLiteStore) GetGoal(ctx context.Context, id string) (*types.Goal, error) {
	g, err := scanGoal(s.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

// ListGoals returns all goals ordered by title.
func (s *SQLiteStore) ListGoals(ctx context.Context) ([]types.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals ORDER BY title COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []types.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// GetStats returns aggregate store statistics.
func (s *SQLiteStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	var st types.StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM goals),
			(SELECT COUNT(*) FROM solutions),
			(SELECT COUNT(*) FROM solution_variants),
			(SELECT COUNT(*) FROM goal_implementation_links),
			(SELECT COUNT(*) FROM goal_implementation_links WHERE quality_status = 'pending')
	`).Scan(&st.GoalCount, &st.SolutionCount, &st.VariantCount, &st.LinkCount, &st.PendingCount)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &st, nil
}
