// Package inserter drives one gated candidate through canonicalization and
// into the store, creating missing rows and updating existing ones by
// natural key.
package inserter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/distribution"
	"github.com/jandy1990/wwfm-platform-sub006/internal/metrics"
	"github.com/jandy1990/wwfm-platform-sub006/internal/store"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
	"github.com/jandy1990/wwfm-platform-sub006/internal/validation"
	"github.com/sethvargo/go-retry"
)

// Step names one persistence step.
type Step string

const (
	StepValidate     Step = "validate"
	StepSolution     Step = "solution"
	StepVariant      Step = "variant"
	StepLink         Step = "link"
	StepDistribution Step = "distribution"
)

// Status is the outcome of one step.
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusReused  Status = "reused"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepResult records one step's outcome. Target names the variant or field
// the step acted on, when there is more than one.
type StepResult struct {
	Step   Step   `json:"step"`
	Target string `json:"target,omitempty"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// Result aggregates the step outcomes for one candidate.
type Result struct {
	Title      string       `json:"title"`
	Category   string       `json:"category"`
	GoalID     string       `json:"goal_id"`
	SolutionID string       `json:"solution_id,omitempty"`
	VariantIDs []string     `json:"variant_ids,omitempty"`
	LinkIDs    []string     `json:"link_ids,omitempty"`
	Steps      []StepResult `json:"steps"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
}

// OK reports whether every step succeeded.
func (r *Result) OK() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// Err joins the errors of all failed and skipped steps.
func (r *Result) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

func (r *Result) record(s StepResult) {
	r.Steps = append(r.Steps, s)
	switch s.Status {
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	default:
		r.Succeeded++
	}
	metrics.PersistenceSteps.WithLabelValues(string(s.Step), string(s.Status)).Inc()
}

// BatchResult is the per-candidate outcome of InsertBatch.
type BatchResult struct {
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
}

// Store is the subset of the store used by the inserter.
type Store interface {
	EnsureSolution(ctx context.Context, title string, c category.Category, provenance types.Provenance) (*types.Solution, bool, error)
	EnsureVariant(ctx context.Context, v types.Variant) (*types.Variant, bool, error)
	UpsertLink(ctx context.Context, l types.Link) (*types.Link, bool, error)
	UpdateLinkFields(ctx context.Context, l types.Link) error
	GetLink(ctx context.Context, id string) (*types.Link, error)
	UpsertDistribution(ctx context.Context, fd types.FieldDistribution) (bool, error)
}

// Config controls retry of transient store failures.
type Config struct {
	MaxRetries     uint64
	RetryBaseDelay time.Duration
}

// Inserter persists candidates idempotently.
type Inserter struct {
	store      Store
	registry   *category.Registry
	aggregator *distribution.Aggregator
	recorder   audit.Recorder
	cfg        Config
}

// New creates an Inserter.
func New(s Store, registry *category.Registry, aggregator *distribution.Aggregator, recorder audit.Recorder, cfg Config) *Inserter {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	return &Inserter{
		store:      s,
		registry:   registry,
		aggregator: aggregator,
		recorder:   recorder,
		cfg:        cfg,
	}
}

// withRetry retries fn while the store reports a transient error. The same
// natural keys are reused on every attempt.
func (in *Inserter) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(in.cfg.MaxRetries, retry.NewExponential(in.cfg.RetryBaseDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && store.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// canonical holds the mapped and aggregated view of a candidate's fields.
type canonical struct {
	fields     map[string][]string
	aggregated map[string]types.Distribution
}

func (in *Inserter) canonicalize(ctx context.Context, schema category.Schema, raw map[string][]types.Observation) canonical {
	out := canonical{
		fields:     make(map[string][]string, len(raw)),
		aggregated: make(map[string]types.Distribution, len(raw)),
	}
	for _, name := range schema.RequiredFields() {
		obs, ok := raw[name]
		if !ok {
			continue
		}
		d := in.aggregator.Aggregate(ctx, name, schema.Category, obs)
		out.aggregated[name] = d
		out.fields[name] = fieldValues(schema, name, d)
	}
	return out
}

// fieldValues flattens a distribution into the link's field value list:
// the mode for scalar fields, every bucket for the array field.
func fieldValues(schema category.Schema, name string, d types.Distribution) []string {
	if d.Empty() {
		return []string{}
	}
	if name != schema.ArrayField {
		return []string{d.Mode}
	}
	vals := make([]string, len(d.Values))
	for i, v := range d.Values {
		vals[i] = v.Value
	}
	return vals
}

// Insert validates, canonicalizes and persists one candidate. Every
// independent step is attempted even when an earlier one fails.
func (in *Inserter) Insert(ctx context.Context, c types.Candidate) Result {
	res := Result{Title: c.Title, Category: string(c.Category), GoalID: c.GoalID}
	log := slog.With("component", "inserter", "goal_id", c.GoalID, "solution", c.Title, "category", string(c.Category))

	// Validate
	err := validation.ValidateCandidate(c, in.registry)
	if err == nil && strings.TrimSpace(c.GoalID) == "" {
		err = fmt.Errorf("%w: goal id is required", validation.ErrValidationFailed)
	}
	if err != nil {
		res.record(StepResult{Step: StepValidate, Status: StatusFailed, Err: err})
		in.recorder.Record(ctx, audit.Event{
			Kind:     audit.KindValidationError,
			Category: string(c.Category),
			Subject:  c.Title,
			Detail:   err.Error(),
		})
		log.Warn("candidate failed validation", "error", err)
		in.skip(&res, err, StepSolution, StepVariant, StepLink, StepDistribution)
		return res
	}
	res.record(StepResult{Step: StepValidate, Status: StatusPassed})
	schema, _ := in.registry.Lookup(c.Category)

	canon := in.canonicalize(ctx, schema, c.Fields)

	// Solution
	var sol *types.Solution
	err = in.withRetry(ctx, func(ctx context.Context) error {
		var created bool
		var err error
		sol, created, err = in.store.EnsureSolution(ctx, c.Title, c.Category, c.Provenance)
		if err != nil {
			return err
		}
		res.record(StepResult{Step: StepSolution, Status: createdOrReused(created)})
		return nil
	})
	if err != nil {
		in.fail(ctx, &res, log, StepSolution, c.Title, err)
		in.skip(&res, fmt.Errorf("solution: %w", err), StepVariant, StepLink, StepDistribution)
		return res
	}
	res.SolutionID = sol.ID

	// Variants
	var variants []*types.Variant
	for _, v := range Variants(schema, c.Variants) {
		v.SolutionID = sol.ID
		var got *types.Variant
		err := in.withRetry(ctx, func(ctx context.Context) error {
			var created bool
			var err error
			got, created, err = in.store.EnsureVariant(ctx, v)
			if err != nil {
				return err
			}
			res.record(StepResult{Step: StepVariant, Target: v.Name, Status: createdOrReused(created)})
			return nil
		})
		if err != nil {
			in.fail(ctx, &res, log, StepVariant, v.Name, err)
			continue
		}
		variants = append(variants, got)
		res.VariantIDs = append(res.VariantIDs, got.ID)
	}

	// Links, one per resolved variant
	if len(variants) == 0 {
		in.skip(&res, errors.New("no variant resolved"), StepLink)
	}
	for _, v := range variants {
		link := types.Link{
			GoalID:           c.GoalID,
			VariantID:        v.ID,
			SolutionID:       sol.ID,
			Effectiveness:    c.Effectiveness,
			Rationale:        c.Rationale,
			Fields:           canon.fields,
			RawFields:        c.Fields,
			AggregatedFields: canon.aggregated,
		}
		var got *types.Link
		err := in.withRetry(ctx, func(ctx context.Context) error {
			var created bool
			var err error
			got, created, err = in.store.UpsertLink(ctx, link)
			if err != nil {
				return err
			}
			res.record(StepResult{Step: StepLink, Target: v.Name, Status: createdOrUpdated(created)})
			return nil
		})
		if err != nil {
			in.fail(ctx, &res, log, StepLink, v.Name, err)
			continue
		}
		res.LinkIDs = append(res.LinkIDs, got.ID)
	}

	// Distributions depend only on the solution and goal
	in.writeDistributions(ctx, &res, log, sol.ID, c.GoalID, schema, canon.aggregated)

	log.Info("candidate persisted",
		"solution_id", sol.ID,
		"variants", len(variants),
		"links", len(res.LinkIDs),
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return res
}

func (in *Inserter) writeDistributions(ctx context.Context, res *Result, log *slog.Logger, solutionID, goalID string, schema category.Schema, aggregated map[string]types.Distribution) {
	for _, name := range schema.RequiredFields() {
		d, ok := aggregated[name]
		if !ok {
			continue
		}
		fd := types.FieldDistribution{SolutionID: solutionID, GoalID: goalID, FieldName: name, Distribution: d}
		err := in.withRetry(ctx, func(ctx context.Context) error {
			created, err := in.store.UpsertDistribution(ctx, fd)
			if err != nil {
				return err
			}
			res.record(StepResult{Step: StepDistribution, Target: name, Status: createdOrUpdated(created)})
			return nil
		})
		if err != nil {
			in.fail(ctx, res, log, StepDistribution, name, err)
		}
	}
}

// InsertBatch inserts candidates independently. One candidate's failure
// never affects another.
func (in *Inserter) InsertBatch(ctx context.Context, candidates []types.Candidate) BatchResult {
	out := BatchResult{Results: make([]Result, 0, len(candidates))}
	for _, c := range candidates {
		r := in.Insert(ctx, c)
		if r.OK() {
			out.Succeeded++
		} else {
			out.Failed++
		}
		out.Results = append(out.Results, r)
	}
	return out
}

// ApplyFix re-canonicalizes corrected raw values for a persisted link and
// rewrites the link and its distributions in place.
func (in *Inserter) ApplyFix(ctx context.Context, item types.QualityItem, fixes map[string]string) error {
	if len(fixes) == 0 {
		return nil
	}
	schema, ok := in.registry.Lookup(item.Category)
	if !ok {
		return fmt.Errorf("apply fix: %w", category.ErrUnknownCategory)
	}

	var link *types.Link
	err := in.withRetry(ctx, func(ctx context.Context) error {
		var err error
		link, err = in.store.GetLink(ctx, item.LinkID)
		return err
	})
	if err != nil {
		return fmt.Errorf("apply fix: load link %s: %w: %w", item.LinkID, ErrPersistence, err)
	}
	if link.Fields == nil {
		link.Fields = map[string][]string{}
	}
	if link.RawFields == nil {
		link.RawFields = map[string][]types.Observation{}
	}
	if link.AggregatedFields == nil {
		link.AggregatedFields = map[string]types.Distribution{}
	}

	changed := make(map[string]types.Distribution, len(fixes))
	for name, raw := range fixes {
		if _, ok := schema.Field(name); !ok {
			slog.Warn("ignoring fix for unknown field",
				"component", "inserter",
				"link_id", item.LinkID,
				"field", name,
			)
			continue
		}
		obs := fixObservations(schema, name, raw)
		d := in.aggregator.Aggregate(ctx, name, schema.Category, obs)
		link.RawFields[name] = obs
		link.AggregatedFields[name] = d
		link.Fields[name] = fieldValues(schema, name, d)
		changed[name] = d
	}
	if len(changed) == 0 {
		return nil
	}

	err = in.withRetry(ctx, func(ctx context.Context) error {
		return in.store.UpdateLinkFields(ctx, *link)
	})
	if err != nil {
		in.recordPersistenceError(ctx, item.SolutionTitle, StepLink, item.LinkID, err)
		return fmt.Errorf("apply fix: update link: %w: %w", ErrPersistence, err)
	}

	res := Result{GoalID: link.GoalID, SolutionID: link.SolutionID}
	log := slog.With("component", "inserter", "link_id", item.LinkID)
	in.writeDistributions(ctx, &res, log, link.SolutionID, link.GoalID, schema, changed)
	if res.Failed > 0 {
		return fmt.Errorf("apply fix: %w", res.Err())
	}
	return nil
}

// fixObservations turns a corrected raw value into observations. The array
// field accepts a comma-separated list weighted equally.
func fixObservations(schema category.Schema, name, raw string) []types.Observation {
	if name != schema.ArrayField {
		return []types.Observation{{Name: strings.TrimSpace(raw), Percentage: 100}}
	}
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []types.Observation{{Name: "", Percentage: 100}}
	}
	obs := make([]types.Observation, len(parts))
	for i, p := range parts {
		obs[i] = types.Observation{Name: p, Percentage: 100 / float64(len(parts))}
	}
	return obs
}

func (in *Inserter) fail(ctx context.Context, res *Result, log *slog.Logger, step Step, target string, err error) {
	wrapped := fmt.Errorf("%s %s: %w: %w", step, target, ErrPersistence, err)
	res.record(StepResult{Step: step, Target: target, Status: StatusFailed, Err: wrapped})
	log.Error("persistence step failed", "step", string(step), "target", target, "error", err)
	in.recordPersistenceError(ctx, res.Title, step, target, err)
}

func (in *Inserter) recordPersistenceError(ctx context.Context, subject string, step Step, target string, err error) {
	in.recorder.Record(ctx, audit.Event{
		Kind:    audit.KindPersistenceError,
		Field:   string(step),
		Subject: subject,
		Detail:  fmt.Sprintf("%s: %v", target, err),
	})
}

func (in *Inserter) skip(res *Result, cause error, steps ...Step) {
	for _, s := range steps {
		res.record(StepResult{
			Step:   s,
			Status: StatusSkipped,
			Err:    fmt.Errorf("%s: %w: %w", s, ErrDependencySkipped, cause),
		})
	}
}

func createdOrReused(created bool) Status {
	if created {
		return StatusCreated
	}
	return StatusReused
}

func createdOrUpdated(created bool) Status {
	if created {
		return StatusCreated
	}
	return StatusUpdated
}
