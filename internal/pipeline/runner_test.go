package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/coverage"
	"github.com/jandy1990/wwfm-platform-sub006/internal/credibility"
	"github.com/jandy1990/wwfm-platform-sub006/internal/inserter"
	"github.com/jandy1990/wwfm-platform-sub006/internal/llm"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

type mockSelector struct {
	goals []types.GoalCoverage
	err   error
}

func (m *mockSelector) Select(ctx context.Context, strategy coverage.Strategy, n int) ([]types.GoalCoverage, error) {
	if m.err != nil {
		return nil, m.err
	}
	if n > 0 && n < len(m.goals) {
		return m.goals[:n], nil
	}
	return m.goals, nil
}

// mockGenerator fails the first failures calls, then returns candidates.
type mockGenerator struct {
	mu         sync.Mutex
	candidates []types.Candidate
	failures   int
	err        error
	calls      int
}

func (m *mockGenerator) Generate(ctx context.Context, req llm.GenerateRequest) ([]types.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.failures > 0 {
		m.failures--
		return nil, errors.New("503 overloaded")
	}
	out := make([]types.Candidate, len(m.candidates))
	copy(out, m.candidates)
	for i := range out {
		out[i].Category = req.Category
	}
	return out, nil
}

type mockScorer struct {
	score float64
}

func (m *mockScorer) Score(ctx context.Context, req credibility.ScoreRequest) (credibility.ScoreResult, error) {
	return credibility.ScoreResult{Score: m.score}, nil
}

type mockInserter struct {
	mu       sync.Mutex
	inserted []types.Candidate
}

func (m *mockInserter) InsertBatch(ctx context.Context, candidates []types.Candidate) inserter.BatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := inserter.BatchResult{}
	for _, c := range candidates {
		m.inserted = append(m.inserted, c)
		out.Results = append(out.Results, inserter.Result{Title: c.Title})
		out.Succeeded++
	}
	return out
}

func (m *mockInserter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

func appFields() map[string][]types.Observation {
	return map[string][]types.Observation{
		"time_to_results":   {{Name: "1-2 weeks", Percentage: 100}},
		"usage_frequency":   {{Name: "Daily", Percentage: 100}},
		"subscription_type": {{Name: "Free version", Percentage: 100}},
		"cost":              {{Name: "Free", Percentage: 100}},
		"challenges":        {{Name: "None", Percentage: 100}},
	}
}

func goals(n int) []types.GoalCoverage {
	out := make([]types.GoalCoverage, n)
	for i := range out {
		out[i] = types.GoalCoverage{Goal: types.Goal{ID: string(rune('a' + i)), Title: "Goal " + string(rune('A'+i))}}
	}
	return out
}

func newRunner(t *testing.T, sel GoalSelector, gen Generator, score float64, ins Inserter, rec audit.Recorder) *Runner {
	t.Helper()
	registry := category.Default()
	gate, err := credibility.NewGate(registry, &mockScorer{score: score}, credibility.DefaultThreshold, rec)
	if err != nil {
		t.Fatal(err)
	}
	return NewRunner(sel, gen, gate, ins, registry, rec, Config{
		Concurrency:    3,
		PerCategory:    2,
		Categories:     []category.Category{category.AppsSoftware},
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	})
}

func TestRun_EndToEnd(t *testing.T) {
	// Given: three goals and a generator returning one valid and one invalid candidate
	gen := &mockGenerator{candidates: []types.Candidate{
		{Title: "Headspace", Effectiveness: 4.2, Fields: appFields()},
		{Title: "Broken", Effectiveness: 4.2, Fields: map[string][]types.Observation{}},
	}}
	ins := &mockInserter{}
	rec := &audit.Memory{}
	r := newRunner(t, &mockSelector{goals: goals(3)}, gen, 90, ins, rec)

	// When: a run executes
	report, err := r.Run(context.Background(), RunOptions{Strategy: coverage.BreadthFirst})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Then: each goal got one insert and one validation failure
	if report.Generated != 6 || report.Invalid != 3 || report.Accepted != 3 || report.Inserted != 3 {
		t.Errorf("report = %+v", report)
	}
	if ins.count() != 3 {
		t.Errorf("inserted = %d, want 3", ins.count())
	}
	if rec.Count(audit.KindValidationError) != 3 {
		t.Errorf("validation events = %d, want 3", rec.Count(audit.KindValidationError))
	}
	for _, c := range ins.inserted {
		if c.GoalID == "" {
			t.Error("inserted candidate missing goal id")
		}
	}
	if report.Gate.Total != 3 || report.Gate.Accepted != 3 {
		t.Errorf("gate = %+v", report.Gate)
	}
	if report.ID == "" || report.FinishedAt.Before(report.StartedAt) {
		t.Errorf("report metadata = %s %v %v", report.ID, report.StartedAt, report.FinishedAt)
	}
}

func TestRun_RejectedCandidatesNeverInserted(t *testing.T) {
	// Given: effectiveness below the category minimum
	gen := &mockGenerator{candidates: []types.Candidate{{Title: "Weak app", Effectiveness: 2.0, Fields: appFields()}}}
	ins := &mockInserter{}
	r := newRunner(t, &mockSelector{goals: goals(2)}, gen, 90, ins, nil)

	report, err := r.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if ins.count() != 0 {
		t.Errorf("inserted = %d, want 0", ins.count())
	}
	if report.Rejected != 2 {
		t.Errorf("rejected = %d, want 2", report.Rejected)
	}
}

func TestRun_ImplausibleRejected(t *testing.T) {
	gen := &mockGenerator{candidates: []types.Candidate{{Title: "Headspace", Effectiveness: 4.2, Fields: appFields()}}}
	ins := &mockInserter{}
	r := newRunner(t, &mockSelector{goals: goals(1)}, gen, 20, ins, nil)

	report, _ := r.Run(context.Background(), RunOptions{})
	if report.Rejected != 1 || ins.count() != 0 {
		t.Errorf("rejected = %d, inserted = %d", report.Rejected, ins.count())
	}
}

func TestRun_FanOutCappedAcrossGoals(t *testing.T) {
	// apps_software caps new connections per solution at 8
	gen := &mockGenerator{candidates: []types.Candidate{{Title: "Headspace", Effectiveness: 4.2, Fields: appFields()}}}
	ins := &mockInserter{}
	r := newRunner(t, &mockSelector{goals: goals(12)}, gen, 90, ins, nil)

	report, _ := r.Run(context.Background(), RunOptions{})

	if ins.count() != 8 {
		t.Errorf("inserted = %d, want 8", ins.count())
	}
	if report.Rejected != 4 {
		t.Errorf("rejected = %d, want 4", report.Rejected)
	}
}

func TestRun_RetriesTransientGeneratorErrors(t *testing.T) {
	gen := &mockGenerator{
		candidates: []types.Candidate{{Title: "Headspace", Effectiveness: 4.2, Fields: appFields()}},
		failures:   2,
	}
	ins := &mockInserter{}
	r := newRunner(t, &mockSelector{goals: goals(1)}, gen, 90, ins, nil)

	report, _ := r.Run(context.Background(), RunOptions{})

	if gen.calls != 3 {
		t.Errorf("calls = %d, want 3", gen.calls)
	}
	if report.Inserted != 1 {
		t.Errorf("inserted = %d, want 1", report.Inserted)
	}
}

func TestRun_GeneratorFailureIsolatedPerGoal(t *testing.T) {
	gen := &mockGenerator{err: category.ErrUnknownCategory}
	r := newRunner(t, &mockSelector{goals: goals(2)}, gen, 90, &mockInserter{}, nil)

	report, err := r.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// Unknown category is permanent: one call per goal, no retries
	if gen.calls != 2 {
		t.Errorf("calls = %d, want 2", gen.calls)
	}
	for _, g := range report.Goals {
		if len(g.Errors) != 1 {
			t.Errorf("goal %s errors = %v", g.GoalID, g.Errors)
		}
	}
}

func TestRun_DryRunSkipsInsert(t *testing.T) {
	gen := &mockGenerator{candidates: []types.Candidate{{Title: "Headspace", Effectiveness: 4.2, Fields: appFields()}}}
	ins := &mockInserter{}
	r := newRunner(t, &mockSelector{goals: goals(2)}, gen, 90, ins, nil)

	report, _ := r.Run(context.Background(), RunOptions{DryRun: true})
	if ins.count() != 0 || report.Accepted != 2 || !report.DryRun {
		t.Errorf("inserted = %d, report = %+v", ins.count(), report)
	}
}

func TestRun_SelectorError(t *testing.T) {
	r := newRunner(t, &mockSelector{err: errors.New("db down")}, &mockGenerator{}, 90, &mockInserter{}, nil)
	if _, err := r.Run(context.Background(), RunOptions{}); err == nil {
		t.Error("expected error")
	}
}
