package types

import (
	"encoding/json"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
)

// Provenance tags where a solution came from.
type Provenance string

const (
	ProvenanceAIGenerated   Provenance = "ai_generated"
	ProvenanceUserSubmitted Provenance = "user_submitted"
)

// Goal is an outcome a person wants. Read-only for the pipeline.
type Goal struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	Description  string    `json:"description,omitempty" yaml:"description"`
	Arena        string    `json:"arena" yaml:"arena"`
	Category     string    `json:"category" yaml:"category"`
	UserInterest int       `json:"user_interest" yaml:"user_interest"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
}

// Solution is a concrete thing people try. Natural key: (title, category).
type Solution struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Category   category.Category `json:"category"`
	Approved   bool              `json:"approved"`
	Provenance Provenance        `json:"provenance"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Variant is a specific form of a solution. Natural key: (solution_id, name).
type Variant struct {
	ID         string    `json:"id"`
	SolutionID string    `json:"solution_id"`
	Name       string    `json:"name"`
	Amount     *float64  `json:"amount,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	Form       string    `json:"form,omitempty"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
}

// VariantSpec is the structured variant descriptor produced by the generator.
type VariantSpec struct {
	Amount float64 `json:"amount,omitempty"`
	Unit   string  `json:"unit,omitempty"`
	Form   string  `json:"form,omitempty"`
}

// Observation is one raw (value, percentage) pair for a field.
type Observation struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// DistributionValue is one canonical bucket of a distribution.
type DistributionValue struct {
	Value      string  `json:"value"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// Distribution is the canonical statistical summary for one field.
// TotalReports is 1 for model-generated data; it marks provenance, not a
// survey sample size.
type Distribution struct {
	Mode         string              `json:"mode"`
	Values       []DistributionValue `json:"values"`
	TotalReports int                 `json:"totalReports"`
}

// Empty reports whether the distribution carries no data.
func (d Distribution) Empty() bool {
	return len(d.Values) == 0
}

// MarshalJSON ensures nil Values marshal as [] not null.
func (d Distribution) MarshalJSON() ([]byte, error) {
	if d.Values == nil {
		d.Values = []DistributionValue{}
	}
	type Alias Distribution
	return json.Marshal(Alias(d))
}

// QualityStatus tracks a link through the quality review loop.
type QualityStatus string

const (
	QualityPending QualityStatus = "pending"
	QualityPassed  QualityStatus = "passed"
	QualityFixed   QualityStatus = "fixed"
	QualityFailed  QualityStatus = "failed"
)

// Link associates a solution variant with a goal. Natural key: (goal_id, variant_id).
type Link struct {
	ID               string                   `json:"id"`
	GoalID           string                   `json:"goal_id"`
	VariantID        string                   `json:"variant_id"`
	SolutionID       string                   `json:"solution_id"`
	Effectiveness    float64                  `json:"effectiveness"`
	Rationale        string                   `json:"rationale,omitempty"`
	Fields           map[string][]string      `json:"fields"`
	RawFields        map[string][]Observation `json:"raw_fields,omitempty"`
	AggregatedFields map[string]Distribution  `json:"aggregated_fields,omitempty"`
	QualityStatus    QualityStatus            `json:"quality_status"`
	QualityScore     *float64                 `json:"quality_score,omitempty"`
	QualityCheckedAt *time.Time               `json:"quality_checked_at,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// FieldDistribution is the persisted distribution for (solution, goal, field).
type FieldDistribution struct {
	ID           string       `json:"id"`
	SolutionID   string       `json:"solution_id"`
	GoalID       string       `json:"goal_id"`
	FieldName    string       `json:"field_name"`
	Distribution Distribution `json:"distribution"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Candidate is one generated solution for a goal, prior to gating.
// Fields maps each field name to its raw generated distribution.
type Candidate struct {
	GoalID        string                   `json:"goal_id"`
	Title         string                   `json:"title"`
	Category      category.Category        `json:"category"`
	Effectiveness float64                  `json:"effectiveness"`
	Rationale     string                   `json:"rationale,omitempty"`
	Fields        map[string][]Observation `json:"fields"`
	Variants      []VariantSpec            `json:"variants,omitempty"`
	Provenance    Provenance               `json:"provenance,omitempty"`
}

// GoalCoverage is one row of the live coverage snapshot.
type GoalCoverage struct {
	Goal          Goal `json:"goal"`
	AIGenerated   int  `json:"ai_generated"`
	UserSubmitted int  `json:"user_submitted"`
}

// Count returns the total number of linked solutions.
func (g GoalCoverage) Count() int {
	return g.AIGenerated + g.UserSubmitted
}

// CoverageSummary is a point-in-time progress report.
type CoverageSummary struct {
	TotalGoals     int            `json:"total_goals"`
	TotalSolutions int            `json:"total_solutions"`
	ByState        map[string]int `json:"by_state"`
	ByArena        map[string]int `json:"by_arena_uncovered"`
	Completion     float64        `json:"completion"`
	RecordedAt     time.Time      `json:"recorded_at"`
}

// MarshalJSON ensures nil maps marshal as {} not null.
func (s CoverageSummary) MarshalJSON() ([]byte, error) {
	if s.ByState == nil {
		s.ByState = map[string]int{}
	}
	if s.ByArena == nil {
		s.ByArena = map[string]int{}
	}
	type Alias CoverageSummary
	return json.Marshal(Alias(s))
}

// QualityItem is a persisted link awaiting quality review.
type QualityItem struct {
	LinkID        string                   `json:"link_id"`
	GoalID        string                   `json:"goal_id"`
	GoalTitle     string                   `json:"goal_title"`
	SolutionID    string                   `json:"solution_id"`
	SolutionTitle string                   `json:"solution_title"`
	Category      category.Category        `json:"category"`
	Effectiveness float64                  `json:"effectiveness"`
	Fields        map[string][]string      `json:"fields"`
	RawFields     map[string][]Observation `json:"raw_fields,omitempty"`
}

// Verdict is the quality checker's decision for one item.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFix  Verdict = "fix"
	VerdictFail Verdict = "fail"
)

// QualityVerdict is the checker's result for one item. Fixes maps a field
// name to its corrected raw value.
type QualityVerdict struct {
	LinkID  string             `json:"link_id"`
	Verdict Verdict            `json:"verdict"`
	Scores  map[string]float64 `json:"scores"`
	Fixes   map[string]string  `json:"fixes,omitempty"`
	Notes   string             `json:"notes,omitempty"`
}

// AverageScore returns the mean of the per-dimension scores, or 0 when none.
func (v QualityVerdict) AverageScore() float64 {
	if len(v.Scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range v.Scores {
		sum += s
	}
	return sum / float64(len(v.Scores))
}

// QualityReport is one quality checker response. A nil Cost means the
// spend for the call could not be determined.
type QualityReport struct {
	Verdicts         []QualityVerdict `json:"verdicts"`
	Cost             *float64         `json:"cost,omitempty"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
}

// QualityRun is the persisted record of one orchestrator run.
type QualityRun struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Spend      float64    `json:"spend"`
	Batches    int        `json:"batches"`
	Items      int        `json:"items"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Model         string `json:"model"`
	GoalCount     int64  `json:"goal_count"`
	SolutionCount int64  `json:"solution_count"`
	PendingItems  int64  `json:"pending_quality_items"`
}

// StoreStats holds aggregate store statistics.
type StoreStats struct {
	GoalCount     int64 `json:"goal_count"`
	SolutionCount int64 `json:"solution_count"`
	VariantCount  int64 `json:"variant_count"`
	LinkCount     int64 `json:"link_count"`
	PendingCount  int64 `json:"pending_count"`
}
