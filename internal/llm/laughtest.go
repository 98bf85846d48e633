package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jandy1990/wwfm-platform-sub006/internal/credibility"
)

// Compile-time interface check
var _ credibility.Scorer = (*LaughTest)(nil)

// LaughTest asks the model whether a solution-goal connection would make a
// knowledgeable reader laugh, returning a 0-100 plausibility score.
type LaughTest struct {
	client *Client
}

// NewLaughTest creates a plausibility scorer.
func NewLaughTest(client *Client) *LaughTest {
	return &LaughTest{client: client}
}

const laughTestSystem = `You judge whether recommending a solution for a goal is plausible to an informed reader.
Respond with a single JSON object {"score": number 0-100, "explanation": string}.
100 means obviously sensible, 0 means absurd.`

type laughTestResponse struct {
	Score       *float64 `json:"score"`
	Explanation string   `json:"explanation"`
}

// Score implements credibility.Scorer.
func (l *LaughTest) Score(ctx context.Context, req credibility.ScoreRequest) (credibility.ScoreResult, error) {
	prompt := fmt.Sprintf("Goal: %s (%s / %s)\nSolution: %s (category %s)\nClaimed effectiveness: %.1f of 5\nRationale: %s\n",
		req.GoalTitle, req.GoalArena, req.GoalCategory,
		req.SolutionTitle, req.SolutionCategory,
		req.Effectiveness, req.Rationale)

	comp, err := l.client.Complete(ctx, "laugh_test", laughTestSystem, prompt)
	if err != nil {
		return credibility.ScoreResult{}, err
	}
	raw, err := extractJSON(comp.Text)
	if err != nil {
		return credibility.ScoreResult{}, fmt.Errorf("laugh test: %w", err)
	}
	var resp laughTestResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return credibility.ScoreResult{}, fmt.Errorf("laugh test: %w: %v", ErrMalformedResponse, err)
	}
	if resp.Score == nil || *resp.Score < 0 || *resp.Score > 100 {
		return credibility.ScoreResult{}, fmt.Errorf("laugh test: %w: score missing or out of range", ErrMalformedResponse)
	}
	return credibility.ScoreResult{Score: *resp.Score, Explanation: resp.Explanation}, nil
}
