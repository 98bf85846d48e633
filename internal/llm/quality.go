package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// QualityChecker reviews persisted links in batches.
type QualityChecker struct {
	client *Client
}

// NewQualityChecker creates a QualityChecker.
func NewQualityChecker(client *Client) *QualityChecker {
	return &QualityChecker{client: client}
}

const qualitySystem = `You review generated solution data for accuracy and completeness.
For every item respond with a verdict: "pass", "fix" (with corrected raw field values) or "fail".
Score each dimension (accuracy, completeness, specificity) from 0 to 10.
Respond with a single JSON object
{"verdicts":[{"link_id":string,"verdict":string,"scores":{dimension:number},"fixes":{field:string},"notes":string}]}.
For list fields, give fixes as comma-separated values.`

type qualityResponse struct {
	Verdicts []types.QualityVerdict `json:"verdicts"`
}

// Check sends the batch in one call. Verdicts with an unknown link id or an
// unrecognized verdict are dropped.
func (q *QualityChecker) Check(ctx context.Context, items []types.QualityItem) (*types.QualityReport, error) {
	if len(items) == 0 {
		return &types.QualityReport{}, nil
	}
	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("quality check: encode batch: %w", err)
	}

	comp, err := q.client.Complete(ctx, "quality_check", qualitySystem, "Items:\n"+string(payload))
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(comp.Text)
	if err != nil {
		return nil, fmt.Errorf("quality check: %w", err)
	}
	var resp qualityResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("quality check: %w: %v", ErrMalformedResponse, err)
	}

	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.LinkID] = true
	}
	report := &types.QualityReport{
		Cost:             comp.Cost,
		PromptTokens:     comp.PromptTokens,
		CompletionTokens: comp.CompletionTokens,
	}
	for _, v := range resp.Verdicts {
		v.Verdict = types.Verdict(strings.ToLower(strings.TrimSpace(string(v.Verdict))))
		switch v.Verdict {
		case types.VerdictPass, types.VerdictFix, types.VerdictFail:
		default:
			continue
		}
		if !known[v.LinkID] {
			continue
		}
		report.Verdicts = append(report.Verdicts, v)
	}
	return report, nil
}
