package credibility

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// mockScorer returns a fixed score (or per-title score) and counts calls.
type mockScorer struct {
	mu      sync.Mutex
	score   float64
	byTitle map[string]float64
	err     error
	calls   int
}

func (m *mockScorer) Score(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return ScoreResult{}, m.err
	}
	if s, ok := m.byTitle[req.SolutionTitle]; ok {
		return ScoreResult{Score: s, Explanation: "per-title"}, nil
	}
	return ScoreResult{Score: m.score, Explanation: "fixed"}, nil
}

func (m *mockScorer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var anxietyGoal = types.Goal{ID: "g1", Title: "Reduce anxiety", Arena: "Mental health", Category: "Anxiety"}

func newTestGate(t *testing.T, scorer Scorer) (*Gate, *audit.Memory) {
	t.Helper()
	rec := &audit.Memory{}
	g, err := NewGate(category.Default(), scorer, DefaultThreshold, rec)
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	return g, rec
}

func TestCheck_BelowMinimumRejectedWithoutScoring(t *testing.T) {
	// Given: a medications candidate at 3.2 (minimum 3.8) and a scorer that would pass it
	scorer := &mockScorer{score: 100}
	g, rec := newTestGate(t, scorer)
	c := types.Candidate{Title: "Sertraline", Category: category.Medications, Effectiveness: 3.2}

	// When: checking
	d := g.Check(context.Background(), c, anxietyGoal)

	// Then: rejected, scorer never called, audit recorded
	if d.Accepted {
		t.Fatal("expected rejection")
	}
	if d.Reason != ReasonBelowMinimum {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonBelowMinimum)
	}
	if scorer.Calls() != 0 {
		t.Errorf("scorer called %d times, want 0", scorer.Calls())
	}
	if rec.Count(audit.KindCredibilityRejected) != 1 {
		t.Error("expected a credibility_rejected audit event")
	}
	if !errors.Is(d.Err(), ErrRejected) {
		t.Errorf("Err() = %v, want ErrRejected", d.Err())
	}
}

func TestCheck_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		score float64
		want  bool
	}{
		{69.9, false},
		{70, true},
		{95, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.1f", tt.score), func(t *testing.T) {
			g, _ := newTestGate(t, &mockScorer{score: tt.score})
			c := types.Candidate{Title: "Headspace", Category: category.AppsSoftware, Effectiveness: 4.0}
			d := g.Check(context.Background(), c, anxietyGoal)
			if d.Accepted != tt.want {
				t.Errorf("Accepted = %v, want %v (reason %s)", d.Accepted, tt.want, d.Reason)
			}
			if d.Score == nil || *d.Score != tt.score {
				t.Errorf("Score = %v, want %v", d.Score, tt.score)
			}
		})
	}
}

func TestCheck_UnknownCategory(t *testing.T) {
	scorer := &mockScorer{score: 100}
	g, _ := newTestGate(t, scorer)
	d := g.Check(context.Background(), types.Candidate{Title: "x", Category: "pets", Effectiveness: 5}, anxietyGoal)
	if d.Accepted || d.Reason != ReasonUnknownCategory {
		t.Errorf("got %+v, want unknown_category rejection", d)
	}
	if scorer.Calls() != 0 {
		t.Error("scorer should not be called for unknown category")
	}
}

func TestCheck_ScorerFailureNotAdmitted(t *testing.T) {
	g, rec := newTestGate(t, &mockScorer{err: errors.New("timeout")})
	d := g.Check(context.Background(), types.Candidate{Title: "Calm", Category: category.AppsSoftware, Effectiveness: 4}, anxietyGoal)
	if d.Accepted || d.Reason != ReasonScorerUnavailable {
		t.Errorf("got %+v, want scorer_unavailable", d)
	}
	if rec.Count(audit.KindCredibilityRejected) != 1 {
		t.Error("scorer failure should be audited")
	}
}

func TestSession_FanOutCapRejectsBeforeScoring(t *testing.T) {
	// Given: medical procedures allow 3 new connections per run
	scorer := &mockScorer{score: 90}
	g, _ := newTestGate(t, scorer)
	s := g.NewSession()
	c := types.Candidate{Title: "Knee arthroscopy", Category: category.MedicalProcedures, Effectiveness: 4.5}

	// When: the same solution is offered for five goals
	var accepted int
	for i := 0; i < 5; i++ {
		goal := types.Goal{ID: fmt.Sprintf("g%d", i), Title: fmt.Sprintf("Goal %d", i)}
		if s.Check(context.Background(), c, goal).Accepted {
			accepted++
		}
	}

	// Then: only the cap is admitted, and the excess is never scored
	if accepted != 3 {
		t.Errorf("accepted = %d, want 3", accepted)
	}
	if scorer.Calls() != 3 {
		t.Errorf("scorer calls = %d, want 3", scorer.Calls())
	}
}

func TestSession_FanOutKeyIgnoresTitleCase(t *testing.T) {
	g, _ := newTestGate(t, &mockScorer{score: 90})
	s := g.NewSession()
	titles := []string{"Knee Arthroscopy", "knee arthroscopy", " KNEE ARTHROSCOPY ", "Knee arthroscopy"}
	var accepted int
	for i, title := range titles {
		c := types.Candidate{Title: title, Category: category.MedicalProcedures, Effectiveness: 4.5}
		if s.Check(context.Background(), c, types.Goal{ID: fmt.Sprint(i)}).Accepted {
			accepted++
		}
	}
	if accepted != 3 {
		t.Errorf("accepted = %d, want 3", accepted)
	}
}

func TestSession_ImplausibleDoesNotConsumeFanOut(t *testing.T) {
	scorer := &mockScorer{score: 10}
	g, _ := newTestGate(t, scorer)
	s := g.NewSession()
	c := types.Candidate{Title: "Knee arthroscopy", Category: category.MedicalProcedures, Effectiveness: 4.5}

	for i := 0; i < 4; i++ {
		s.Check(context.Background(), c, types.Goal{ID: fmt.Sprint(i)})
	}

	scorer.mu.Lock()
	scorer.score = 90
	scorer.mu.Unlock()
	if !s.Check(context.Background(), c, types.Goal{ID: "late"}).Accepted {
		t.Error("rejected connections should not count toward the cap")
	}
}

func TestCheckBatch_Statistics(t *testing.T) {
	scorer := &mockScorer{byTitle: map[string]float64{"good": 90, "bad": 20}}
	g, _ := newTestGate(t, scorer)

	items := []Item{
		{Candidate: types.Candidate{Title: "good", Category: category.AppsSoftware, Effectiveness: 4}, Goal: anxietyGoal},
		{Candidate: types.Candidate{Title: "bad", Category: category.AppsSoftware, Effectiveness: 4}, Goal: anxietyGoal},
		{Candidate: types.Candidate{Title: "weak", Category: category.Medications, Effectiveness: 2}, Goal: anxietyGoal},
	}
	r := g.CheckBatch(context.Background(), items)

	if r.Total != 3 || r.Accepted != 1 || r.Rejected != 2 || r.Errored != 0 {
		t.Errorf("unexpected counts: %+v", r)
	}
	if r.Scored != 2 || r.AverageScore != 55 {
		t.Errorf("scored = %d avg = %.1f, want 2 and 55", r.Scored, r.AverageScore)
	}
	if r.RejectionRate < 0.66 || r.RejectionRate > 0.67 {
		t.Errorf("rejection rate = %.3f, want 2/3", r.RejectionRate)
	}
	if r.Calibration != InsufficientData {
		t.Errorf("calibration = %s, want %s", r.Calibration, InsufficientData)
	}
	if len(r.Decisions) != 3 || r.Decisions[0].Candidate.Title != "good" {
		t.Error("decisions should be returned in input order")
	}
}

func TestCheckBatch_CalibrationFlags(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  string
	}{
		{"everything passes", 95, SuspectLenient},
		{"everything fails", 5, SuspectStrict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate(t, &mockScorer{score: tt.score})
			var items []Item
			for i := 0; i < 12; i++ {
				items = append(items, Item{
					Candidate: types.Candidate{Title: fmt.Sprintf("s%d", i), Category: category.AppsSoftware, Effectiveness: 4},
					Goal:      anxietyGoal,
				})
			}
			r := g.CheckBatch(context.Background(), items)
			if r.Calibration != tt.want {
				t.Errorf("calibration = %s, want %s", r.Calibration, tt.want)
			}
		})
	}
}

func TestCheckBatch_ScorerErrorsCountedAndBatchContinues(t *testing.T) {
	g, _ := newTestGate(t, &mockScorer{err: errors.New("down")})
	items := []Item{
		{Candidate: types.Candidate{Title: "a", Category: category.AppsSoftware, Effectiveness: 4}, Goal: anxietyGoal},
		{Candidate: types.Candidate{Title: "b", Category: category.AppsSoftware, Effectiveness: 4}, Goal: anxietyGoal},
	}
	r := g.CheckBatch(context.Background(), items)
	if r.Errored != 2 || r.Total != 2 {
		t.Errorf("errored = %d total = %d, want 2 and 2", r.Errored, r.Total)
	}
}

func TestNewGate_Validation(t *testing.T) {
	if _, err := NewGate(category.Default(), &mockScorer{}, 120, nil); err == nil {
		t.Error("expected error for threshold above 100")
	}
	if _, err := NewGate(category.Default(), nil, 70, nil); err == nil {
		t.Error("expected error for nil scorer")
	}
}
