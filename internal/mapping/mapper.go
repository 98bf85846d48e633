// Package mapping canonicalizes free-text field values into the fixed
// per-category vocabulary declared by the category registry.
package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/metrics"
)

// Method records how a value was mapped.
type Method string

const (
	MethodExact       Method = "exact"
	MethodOverride    Method = "override"
	MethodBestMatch   Method = "best_match"
	MethodFallback    Method = "fallback"
	MethodPassthrough Method = "passthrough"
)

// Result is the outcome of mapping one raw value.
type Result struct {
	Value  string
	Method Method
	// Rule names the override rule that matched, if any.
	Rule string
}

// Mapper maps raw values for (field, category) pairs. It holds no mutable
// state and is safe for concurrent use.
type Mapper struct {
	registry *category.Registry
	rules    []Rule
	recorder audit.Recorder
}

// New creates a Mapper using the built-in override rules.
func New(registry *category.Registry, recorder audit.Recorder) *Mapper {
	return NewWithRules(registry, recorder, DefaultRules())
}

// NewWithRules creates a Mapper with an explicit ordered rule list.
func NewWithRules(registry *category.Registry, recorder audit.Recorder, rules []Rule) *Mapper {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Mapper{
		registry: registry,
		rules:    rules,
		recorder: recorder,
	}
}

// Map returns the canonical value for raw. Fields without an enumerated
// schema return raw unchanged.
func (m *Mapper) Map(ctx context.Context, field, raw string, c category.Category) string {
	return m.MapDetailed(ctx, field, raw, c).Value
}

// MapDetailed is Map plus the method used to reach the result.
func (m *Mapper) MapDetailed(ctx context.Context, field, raw string, c category.Category) Result {
	allowed, ok := m.registry.AllowedValues(c, field)
	if !ok {
		return Result{Value: raw, Method: MethodPassthrough}
	}

	res := m.resolve(field, raw, c, allowed)
	metrics.MappingResults.WithLabelValues(string(c), field, string(res.Method)).Inc()

	if res.Method == MethodFallback {
		slog.Warn("value mapping fell back to default",
			"component", "mapping",
			"category", string(c),
			"field", field,
			"raw", raw,
			"fallback", res.Value,
		)
		m.recorder.Record(ctx, audit.Event{
			Kind:     audit.KindMappingFallback,
			Category: string(c),
			Field:    field,
			Subject:  raw,
			Detail:   fmt.Sprintf("no confident match; used %q", res.Value),
		})
	}
	return res
}

// IsAllowed reports whether value is acceptable for the field. Free-text
// fields accept any value.
func (m *Mapper) IsAllowed(field, value string, c category.Category) bool {
	allowed, ok := m.registry.AllowedValues(c, field)
	if !ok {
		return true
	}
	return contains(allowed, value)
}

func (m *Mapper) resolve(field, raw string, c category.Category, allowed []string) Result {
	if contains(allowed, raw) {
		return Result{Value: raw, Method: MethodExact}
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed != raw && contains(allowed, trimmed) {
		return Result{Value: trimmed, Method: MethodExact}
	}

	for _, a := range allowed {
		if strings.EqualFold(a, trimmed) {
			return Result{Value: a, Method: MethodExact}
		}
	}

	lower := strings.ToLower(trimmed)
	if lower != "" {
		for _, r := range m.rules {
			if !r.applies(c, field) {
				continue
			}
			v, ok := r.apply(lower, allowed)
			// A rule that yields a value outside the allowed set is ignored.
			if ok && contains(allowed, v) {
				return Result{Value: v, Method: MethodOverride, Rule: r.Name}
			}
		}

		if v, ok := bestMatch(lower, allowed); ok {
			return Result{Value: v, Method: MethodBestMatch}
		}
	}

	return Result{Value: allowed[0], Method: MethodFallback}
}

// bestMatch picks the allowed value that equals raw ignoring case, or else
// the longest allowed value that is a substring of raw or contains raw.
// Ties keep declaration order.
func bestMatch(lower string, allowed []string) (string, bool) {
	best := -1
	bestLen := 0
	for i, a := range allowed {
		la := strings.ToLower(a)
		if la == lower {
			return a, true
		}
		if strings.Contains(lower, la) || strings.Contains(la, lower) {
			if len(la) > bestLen {
				best = i
				bestLen = len(la)
			}
		}
	}
	if best < 0 {
		return "", false
	}
	return allowed[best], true
}

func contains(values []string, v string) bool {
	for _, a := range values {
		if a == v {
			return true
		}
	}
	return false
}
