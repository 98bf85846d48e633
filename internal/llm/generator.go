package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// GenerateRequest asks for candidate solutions for one goal.
type GenerateRequest struct {
	Goal     types.Goal
	Category category.Category
	Count    int
}

// Generator produces candidate solutions for a goal.
type Generator struct {
	client   *Client
	registry *category.Registry
}

// NewGenerator creates a Generator.
func NewGenerator(client *Client, registry *category.Registry) *Generator {
	return &Generator{client: client, registry: registry}
}

const generatorSystem = `You recommend concrete, named solutions people actually use for a goal.
Respond with a single JSON object of the form
{"solutions":[{"title":string,"effectiveness":number 1-5,"rationale":string,
"fields":{field:[{"name":string,"percentage":number}]},
"variants":[{"amount":number,"unit":string,"form":string}]}]}.
Percentages for each field describe how experiences split across people and should sum to 100.
Use only the listed values for fields that list them.`

type generatedSolution struct {
	Title         string                         `json:"title"`
	Effectiveness float64                        `json:"effectiveness"`
	Rationale     string                         `json:"rationale"`
	Fields        map[string][]types.Observation `json:"fields"`
	Variants      []types.VariantSpec            `json:"variants"`
}

type generatedResponse struct {
	Solutions []generatedSolution `json:"solutions"`
}

// Generate returns up to req.Count candidates. Candidates are not
// validated here.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) ([]types.Candidate, error) {
	schema, ok := g.registry.Lookup(req.Category)
	if !ok {
		return nil, fmt.Errorf("generate: %w", category.ErrUnknownCategory)
	}

	comp, err := g.client.Complete(ctx, "generate", generatorSystem, generatorPrompt(req, schema))
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(comp.Text)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	var resp generatedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("generate: %w: %v", ErrMalformedResponse, err)
	}

	out := make([]types.Candidate, 0, len(resp.Solutions))
	for _, s := range resp.Solutions {
		if req.Count > 0 && len(out) == req.Count {
			break
		}
		c := types.Candidate{
			GoalID:        req.Goal.ID,
			Title:         strings.TrimSpace(s.Title),
			Category:      req.Category,
			Effectiveness: s.Effectiveness,
			Rationale:     strings.TrimSpace(s.Rationale),
			Fields:        s.Fields,
			Provenance:    types.ProvenanceAIGenerated,
		}
		if schema.VariantBearing {
			c.Variants = s.Variants
		}
		out = append(out, c)
	}
	return out, nil
}

func generatorPrompt(req GenerateRequest, schema category.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", req.Goal.Title)
	if req.Goal.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", req.Goal.Description)
	}
	fmt.Fprintf(&b, "Arena: %s / %s\n", req.Goal.Arena, req.Goal.Category)
	fmt.Fprintf(&b, "Category: %s\n", req.Category)
	fmt.Fprintf(&b, "Return %d solutions.\n\nFields:\n", req.Count)
	for _, name := range schema.RequiredFields() {
		f, _ := schema.Field(name)
		if f.Enumerated() {
			fmt.Fprintf(&b, "- %s: one of %s\n", name, strings.Join(f.Allowed, " | "))
		} else {
			fmt.Fprintf(&b, "- %s: free text\n", name)
		}
	}
	if name := schema.ArrayField; name != "" {
		fmt.Fprintf(&b, "%s may list several values.\n", name)
	}
	if schema.VariantBearing {
		b.WriteString("Include variants for distinct strengths or forms.\n")
	}
	return b.String()
}
