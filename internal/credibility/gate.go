// Package credibility admits or rejects candidate solution-goal connections
// before anything is persisted.
package credibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/metrics"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// DefaultThreshold is the plausibility score required to pass.
const DefaultThreshold = 70.0

// Calibration thresholds over the scorer's own rejection rate.
const (
	lenientRate     = 0.02
	strictRate      = 0.98
	minCalibrationN = 10
)

// Calibration flags reported by CheckBatch.
const (
	CalibrationOK    = "ok"
	SuspectLenient   = "suspect_lenient"
	SuspectStrict    = "suspect_strict"
	InsufficientData = "insufficient_data"
)

var (
	// ErrRejected is returned by Decision.Err for every rejected candidate.
	ErrRejected = errors.New("credibility rejected")
)

// Reason explains a gate decision.
type Reason string

const (
	ReasonAccepted          Reason = "accepted"
	ReasonUnknownCategory   Reason = "unknown_category"
	ReasonBelowMinimum      Reason = "below_min_effectiveness"
	ReasonFanOutExceeded    Reason = "fan_out_exceeded"
	ReasonImplausible       Reason = "implausible"
	ReasonScorerUnavailable Reason = "scorer_unavailable"
)

// ScoreRequest is the connection handed to the plausibility scorer.
type ScoreRequest struct {
	SolutionTitle    string
	SolutionCategory category.Category
	GoalTitle        string
	GoalArena        string
	GoalCategory     string
	Effectiveness    float64
	Rationale        string
}

// ScoreResult is a 0-100 plausibility score.
type ScoreResult struct {
	Score       float64
	Explanation string
}

// Scorer rates how plausible a connection is.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResult, error)
}

// Decision is the outcome for one candidate.
type Decision struct {
	Candidate   types.Candidate
	Accepted    bool
	Reason      Reason
	Score       *float64
	Explanation string
}

// Err returns nil when accepted, otherwise an error wrapping ErrRejected.
func (d Decision) Err() error {
	if d.Accepted {
		return nil
	}
	return fmt.Errorf("%w: %s for %q", ErrRejected, d.Reason, d.Candidate.Title)
}

// Item pairs a candidate with the goal it targets.
type Item struct {
	Candidate types.Candidate
	Goal      types.Goal
}

// BatchReport aggregates decisions for a batch.
type BatchReport struct {
	Decisions     []Decision `json:"-"`
	Total         int        `json:"total"`
	Accepted      int        `json:"accepted"`
	Rejected      int        `json:"rejected"`
	Errored       int        `json:"errored"`
	Scored        int        `json:"scored"`
	RejectionRate float64    `json:"rejection_rate"`
	AverageScore  float64    `json:"average_score"`
	Calibration   string     `json:"calibration"`
}

// Gate combines static per-category thresholds with an external scorer.
type Gate struct {
	registry  *category.Registry
	scorer    Scorer
	threshold float64
	recorder  audit.Recorder
}

// NewGate creates a Gate. threshold must be within [0, 100].
func NewGate(registry *category.Registry, scorer Scorer, threshold float64, recorder audit.Recorder) (*Gate, error) {
	if registry == nil || scorer == nil {
		return nil, errors.New("credibility: registry and scorer are required")
	}
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("credibility: threshold %.1f outside [0, 100]", threshold)
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Gate{
		registry:  registry,
		scorer:    scorer,
		threshold: threshold,
		recorder:  recorder,
	}, nil
}

// Check evaluates one candidate without fan-out tracking.
func (g *Gate) Check(ctx context.Context, c types.Candidate, goal types.Goal) Decision {
	return g.evaluate(ctx, c, goal, nil)
}

// CheckBatch evaluates items in order under a fresh fan-out session.
func (g *Gate) CheckBatch(ctx context.Context, items []Item) BatchReport {
	return g.NewSession().CheckBatch(ctx, items)
}

// NewSession starts fan-out tracking for one generation run.
func (g *Gate) NewSession() *Session {
	return &Session{gate: g, counts: make(map[string]int)}
}

// Session enforces the per-run fan-out cap. Safe for concurrent use.
type Session struct {
	gate   *Gate
	mu     sync.Mutex
	counts map[string]int
}

// Check evaluates one candidate and, if accepted, counts it toward the
// solution's fan-out.
func (s *Session) Check(ctx context.Context, c types.Candidate, goal types.Goal) Decision {
	return s.gate.evaluate(ctx, c, goal, s)
}

// CheckBatch evaluates items in order and aggregates statistics.
func (s *Session) CheckBatch(ctx context.Context, items []Item) BatchReport {
	decisions := make([]Decision, 0, len(items))
	for _, it := range items {
		decisions = append(decisions, s.Check(ctx, it.Candidate, it.Goal))
	}
	return Summarize(decisions)
}

// Summarize aggregates decisions into a report and flags a scorer that
// rejects almost nothing or almost everything.
func Summarize(decisions []Decision) BatchReport {
	report := BatchReport{Decisions: decisions}
	var scoreSum float64
	var implausible int

	for _, d := range decisions {
		report.Total++
		switch {
		case d.Accepted:
			report.Accepted++
		case d.Reason == ReasonScorerUnavailable:
			report.Errored++
		default:
			report.Rejected++
		}
		if d.Score != nil {
			report.Scored++
			scoreSum += *d.Score
			if d.Reason == ReasonImplausible {
				implausible++
			}
		}
	}

	if report.Total > 0 {
		report.RejectionRate = float64(report.Rejected+report.Errored) / float64(report.Total)
	}
	if report.Scored > 0 {
		report.AverageScore = scoreSum / float64(report.Scored)
	}
	report.Calibration = calibration(implausible, report.Scored)

	if report.Calibration == SuspectLenient || report.Calibration == SuspectStrict {
		slog.Warn("plausibility scorer may be mis-calibrated",
			"component", "credibility",
			"calibration", report.Calibration,
			"scored", report.Scored,
			"implausible", implausible,
			"average_score", report.AverageScore,
		)
	}
	return report
}

func calibration(implausible, scored int) string {
	if scored < minCalibrationN {
		return InsufficientData
	}
	rate := float64(implausible) / float64(scored)
	switch {
	case rate <= lenientRate:
		return SuspectLenient
	case rate >= strictRate:
		return SuspectStrict
	default:
		return CalibrationOK
	}
}

// reserve claims a fan-out slot for key, reporting false at the cap.
func (s *Session) reserve(key string, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[key] >= limit {
		return false
	}
	s.counts[key]++
	return true
}

func (s *Session) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[key] > 0 {
		s.counts[key]--
	}
}

// solutionKey mirrors the store's natural key for solutions.
func solutionKey(c types.Candidate) string {
	return strings.ToLower(strings.TrimSpace(c.Title)) + "|" + string(c.Category)
}

func (g *Gate) evaluate(ctx context.Context, c types.Candidate, goal types.Goal, s *Session) Decision {
	schema, ok := g.registry.Lookup(c.Category)
	if !ok {
		return g.reject(ctx, c, goal, ReasonUnknownCategory, nil, "")
	}

	if c.Effectiveness < schema.MinEffectiveness {
		return g.reject(ctx, c, goal, ReasonBelowMinimum, nil,
			fmt.Sprintf("effectiveness %.2f below minimum %.2f", c.Effectiveness, schema.MinEffectiveness))
	}

	key := solutionKey(c)
	if s != nil && !s.reserve(key, schema.MaxNewConnections) {
		return g.reject(ctx, c, goal, ReasonFanOutExceeded, nil,
			fmt.Sprintf("solution already gained %d connections this run", schema.MaxNewConnections))
	}

	res, err := g.scorer.Score(ctx, ScoreRequest{
		SolutionTitle:    c.Title,
		SolutionCategory: c.Category,
		GoalTitle:        goal.Title,
		GoalArena:        goal.Arena,
		GoalCategory:     goal.Category,
		Effectiveness:    c.Effectiveness,
		Rationale:        c.Rationale,
	})
	if err != nil {
		if s != nil {
			s.release(key)
		}
		slog.Error("plausibility scorer failed",
			"component", "credibility",
			"solution", c.Title,
			"goal_id", goal.ID,
			"error", err,
		)
		return g.reject(ctx, c, goal, ReasonScorerUnavailable, nil, err.Error())
	}

	score := res.Score
	metrics.PlausibilityScores.Observe(score)
	if score < g.threshold {
		if s != nil {
			s.release(key)
		}
		return g.reject(ctx, c, goal, ReasonImplausible, &score, res.Explanation)
	}

	metrics.CredibilityVerdicts.WithLabelValues(string(c.Category), string(ReasonAccepted)).Inc()
	return Decision{
		Candidate:   c,
		Accepted:    true,
		Reason:      ReasonAccepted,
		Score:       &score,
		Explanation: res.Explanation,
	}
}

func (g *Gate) reject(ctx context.Context, c types.Candidate, goal types.Goal, reason Reason, score *float64, detail string) Decision {
	metrics.CredibilityVerdicts.WithLabelValues(string(c.Category), string(reason)).Inc()

	if detail == "" {
		detail = string(reason)
	} else {
		detail = string(reason) + ": " + detail
	}
	g.recorder.Record(ctx, audit.Event{
		Kind:     audit.KindCredibilityRejected,
		Category: string(c.Category),
		Subject:  fmt.Sprintf("%s -> %s", c.Title, goal.Title),
		Detail:   detail,
	})

	return Decision{
		Candidate:   c,
		Reason:      reason,
		Score:       score,
		Explanation: detail,
	}
}
