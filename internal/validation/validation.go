package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// Limits applied to generated candidates.
const (
	MaxTitleLength     = 200
	MaxRationaleLength = 2000
	MinEffectiveness   = 1.0
	MaxEffectiveness   = 5.0
)

// ErrValidationFailed is wrapped by every CandidateError.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements error.
func (e ValidationError) Error() string {
	return e.Field + " " + e.Message
}

// CandidateError carries every validation failure for one candidate.
type CandidateError struct {
	Title  string
	Errors []ValidationError
}

// Error implements error.
func (e *CandidateError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("candidate %q: %s", e.Title, strings.Join(msgs, "; "))
}

// Unwrap allows errors.Is(err, ErrValidationFailed).
func (e *CandidateError) Unwrap() error {
	return ErrValidationFailed
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateCandidate checks a generated candidate against its category
// schema. Every required field must be present with at least one named
// observation. The returned error wraps ErrValidationFailed.
func ValidateCandidate(c types.Candidate, registry *category.Registry) error {
	var v Collector

	v.Add(ValidateRequired("title", c.Title))
	v.Add(ValidateUTF8("title", c.Title))
	v.Add(ValidateNoNullBytes("title", c.Title))
	v.Add(ValidateMaxLength("title", c.Title, MaxTitleLength))
	v.Add(ValidateMaxLength("rationale", c.Rationale, MaxRationaleLength))
	v.Add(ValidateRange("effectiveness", c.Effectiveness, MinEffectiveness, MaxEffectiveness))

	schema, ok := registry.Lookup(c.Category)
	if !ok {
		v.Add(&ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", c.Category)})
	} else {
		for _, name := range schema.RequiredFields() {
			v.Add(validateObservations(name, c.Fields[name]))
		}
	}

	if !v.HasErrors() {
		return nil
	}
	return &CandidateError{Title: c.Title, Errors: v.Errors()}
}

func validateObservations(field string, obs []types.Observation) *ValidationError {
	for _, o := range obs {
		if strings.TrimSpace(o.Name) != "" {
			return nil
		}
	}
	return &ValidationError{
		Field:   "fields." + field,
		Message: "is required",
	}
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateRange returns an error if the value is NaN or outside [min, max].
func ValidateRange(field string, value, min, max float64) *ValidationError {
	if math.IsNaN(value) || value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %.1f and %.1f", min, max),
		}
	}
	return nil
}

// ValidateGoal checks a goal imported from a YAML file.
func ValidateGoal(g types.Goal) error {
	var v Collector
	v.Add(ValidateRequired("title", g.Title))
	v.Add(ValidateMaxLength("title", g.Title, MaxTitleLength))
	v.Add(ValidateRequired("arena", g.Arena))
	v.Add(ValidateRequired("category", g.Category))
	if g.UserInterest < 0 {
		v.Add(&ValidationError{Field: "user_interest", Message: "must not be negative"})
	}
	if !v.HasErrors() {
		return nil
	}
	return &CandidateError{Title: g.Title, Errors: v.Errors()}
}
