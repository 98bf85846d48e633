// Package pipeline runs one generation pass: select goals, generate
// candidates, gate them and persist what passes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/coverage"
	"github.com/jandy1990/wwfm-platform-sub006/internal/credibility"
	"github.com/jandy1990/wwfm-platform-sub006/internal/inserter"
	"github.com/jandy1990/wwfm-platform-sub006/internal/llm"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
	"github.com/jandy1990/wwfm-platform-sub006/internal/validation"
	"github.com/oklog/ulid/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Generator produces candidates for one goal and category.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) ([]types.Candidate, error)
}

// GoalSelector picks goals from live coverage.
type GoalSelector interface {
	Select(ctx context.Context, strategy coverage.Strategy, n int) ([]types.GoalCoverage, error)
}

// Inserter persists accepted candidates.
type Inserter interface {
	InsertBatch(ctx context.Context, candidates []types.Candidate) inserter.BatchResult
}

// Config holds the runner defaults.
type Config struct {
	Concurrency    int
	PerCategory    int
	Categories     []category.Category
	MaxRetries     uint64
	RetryBaseDelay time.Duration
}

// RunOptions select what one run does. Zero values fall back to Config.
type RunOptions struct {
	Strategy    coverage.Strategy
	Goals       int
	Categories  []category.Category
	PerCategory int

	// DryRun gates candidates without persisting them.
	DryRun bool
}

// GoalReport is the outcome for one goal.
type GoalReport struct {
	GoalID    string   `json:"goal_id"`
	Title     string   `json:"title"`
	Generated int      `json:"generated"`
	Invalid   int      `json:"invalid"`
	Accepted  int      `json:"accepted"`
	Rejected  int      `json:"rejected"`
	Inserted  int      `json:"inserted"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// RunReport summarizes a run.
type RunReport struct {
	ID         string                  `json:"id"`
	Strategy   coverage.Strategy       `json:"strategy"`
	DryRun     bool                    `json:"dry_run"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Goals      []GoalReport            `json:"goals"`
	Generated  int                     `json:"generated"`
	Invalid    int                     `json:"invalid"`
	Accepted   int                     `json:"accepted"`
	Rejected   int                     `json:"rejected"`
	Inserted   int                     `json:"inserted"`
	Failed     int                     `json:"failed"`
	Gate       credibility.BatchReport `json:"gate"`
}

// Runner wires selection, generation, gating and persistence.
type Runner struct {
	selector  GoalSelector
	generator Generator
	gate      *credibility.Gate
	inserter  Inserter
	registry  *category.Registry
	recorder  audit.Recorder
	cfg       Config
}

// NewRunner creates a Runner.
func NewRunner(selector GoalSelector, generator Generator, gate *credibility.Gate, ins Inserter, registry *category.Registry, recorder audit.Recorder, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PerCategory <= 0 {
		cfg.PerCategory = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Runner{
		selector:  selector,
		generator: generator,
		gate:      gate,
		inserter:  ins,
		registry:  registry,
		recorder:  recorder,
		cfg:       cfg,
	}
}

// Run executes one pass. Per-goal failures are recorded in the report; the
// returned error covers only selection failure and cancellation.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if opts.Strategy == "" {
		opts.Strategy = coverage.BreadthFirst
	}
	if opts.PerCategory <= 0 {
		opts.PerCategory = r.cfg.PerCategory
	}
	categories := opts.Categories
	if len(categories) == 0 {
		categories = r.cfg.Categories
	}
	if len(categories) == 0 {
		categories = r.registry.Categories()
	}

	report := &RunReport{
		ID:        ulid.Make().String(),
		Strategy:  opts.Strategy,
		DryRun:    opts.DryRun,
		StartedAt: time.Now().UTC(),
	}
	log := slog.With("component", "pipeline", "run_id", report.ID)

	goals, err := r.selector.Select(ctx, opts.Strategy, opts.Goals)
	if err != nil {
		return nil, fmt.Errorf("select goals: %w", err)
	}
	log.Info("generation run started",
		"strategy", string(opts.Strategy),
		"goals", len(goals),
		"categories", len(categories),
		"dry_run", opts.DryRun,
	)

	session := r.gate.NewSession()
	results := make([]GoalReport, len(goals))
	decisions := make([][]credibility.Decision, len(goals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, gc := range goals {
		g.Go(func() error {
			results[i], decisions[i] = r.runGoal(gctx, session, gc.Goal, categories, opts)
			return nil
		})
	}
	_ = g.Wait()

	var all []credibility.Decision
	for i, gr := range results {
		report.Goals = append(report.Goals, gr)
		report.Generated += gr.Generated
		report.Invalid += gr.Invalid
		report.Accepted += gr.Accepted
		report.Rejected += gr.Rejected
		report.Inserted += gr.Inserted
		report.Failed += gr.Failed
		all = append(all, decisions[i]...)
	}
	report.Gate = credibility.Summarize(all)
	report.FinishedAt = time.Now().UTC()

	log.Info("generation run completed",
		"goals", len(goals),
		"generated", report.Generated,
		"invalid", report.Invalid,
		"accepted", report.Accepted,
		"rejected", report.Rejected,
		"inserted", report.Inserted,
		"failed", report.Failed,
		"calibration", report.Gate.Calibration,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// runGoal is the single writer for one goal.
func (r *Runner) runGoal(ctx context.Context, session *credibility.Session, goal types.Goal, categories []category.Category, opts RunOptions) (GoalReport, []credibility.Decision) {
	gr := GoalReport{GoalID: goal.ID, Title: goal.Title}
	var items []credibility.Item

	for _, c := range categories {
		if ctx.Err() != nil {
			gr.Errors = append(gr.Errors, ctx.Err().Error())
			break
		}
		candidates, err := r.generate(ctx, llm.GenerateRequest{Goal: goal, Category: c, Count: opts.PerCategory})
		if err != nil {
			gr.Errors = append(gr.Errors, fmt.Sprintf("%s: %v", c, err))
			slog.Warn("generation failed",
				"component", "pipeline",
				"goal_id", goal.ID,
				"category", string(c),
				"error", err,
			)
			continue
		}
		gr.Generated += len(candidates)

		for _, cand := range candidates {
			cand.GoalID = goal.ID
			if err := validation.ValidateCandidate(cand, r.registry); err != nil {
				gr.Invalid++
				r.recorder.Record(ctx, audit.Event{
					Kind:     audit.KindValidationError,
					Category: string(cand.Category),
					Subject:  cand.Title,
					Detail:   err.Error(),
				})
				continue
			}
			items = append(items, credibility.Item{Candidate: cand, Goal: goal})
		}
	}

	var accepted []types.Candidate
	decisions := make([]credibility.Decision, 0, len(items))
	for _, it := range items {
		d := session.Check(ctx, it.Candidate, it.Goal)
		decisions = append(decisions, d)
		if d.Accepted {
			accepted = append(accepted, d.Candidate)
		} else {
			gr.Rejected++
		}
	}
	gr.Accepted = len(accepted)

	if opts.DryRun || len(accepted) == 0 {
		return gr, decisions
	}

	batch := r.inserter.InsertBatch(ctx, accepted)
	gr.Inserted = batch.Succeeded
	gr.Failed = batch.Failed
	for _, res := range batch.Results {
		if !res.OK() {
			gr.Errors = append(gr.Errors, fmt.Sprintf("%s: %v", res.Title, res.Err()))
		}
	}
	return gr, decisions
}

// generate calls the generator with exponential backoff. Unknown categories
// and cancellation are not retried.
func (r *Runner) generate(ctx context.Context, req llm.GenerateRequest) ([]types.Candidate, error) {
	var out []types.Candidate
	b := retry.WithMaxRetries(r.cfg.MaxRetries, retry.NewExponential(r.cfg.RetryBaseDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		cands, err := r.generator.Generate(ctx, req)
		if err != nil {
			if errors.Is(err, category.ErrUnknownCategory) || ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		out = cands
		return nil
	})
	return out, err
}
