package mapping

import (
	"context"
	"testing"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
)

func newTestMapper() (*Mapper, *audit.Memory) {
	rec := &audit.Memory{}
	return New(category.Default(), rec), rec
}

func TestMap_IdempotentOnAllowedValues(t *testing.T) {
	m, rec := newTestMapper()
	r := category.Default()
	ctx := context.Background()

	for _, c := range r.Categories() {
		s, _ := r.Lookup(c)
		names := s.RequiredFields()
		for _, name := range names {
			allowed, ok := r.AllowedValues(c, name)
			if !ok {
				continue
			}
			for _, v := range allowed {
				res := m.MapDetailed(ctx, name, v, c)
				if res.Value != v || res.Method != MethodExact {
					t.Errorf("%s.%s: Map(%q) = %q (%s), want identity", c, name, v, res.Value, res.Method)
				}
			}
		}
	}

	if n := rec.Count(audit.KindMappingFallback); n != 0 {
		t.Errorf("expected no fallbacks for allowed values, got %d", n)
	}
}

func TestMap_AppsCostExamples(t *testing.T) {
	m, _ := newTestMapper()
	ctx := context.Background()

	tests := []struct {
		raw  string
		want string
	}{
		{"Free", "Free"},
		{"Free to start, ongoing marketing costs", "Free"},
		{"$10/month", "$10-$19.99/month"},
		{"$3 per month", "Under $5/month"},
		{"$7.99/month", "$5-$9.99/month"},
		{"$120/year", "$10-$19.99/month"},
		{"$75 a month", "$50+/month"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := m.Map(ctx, "cost", tt.raw, category.AppsSoftware)
			if got != tt.want {
				t.Errorf("Map(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMap_SessionCostRules(t *testing.T) {
	m, _ := newTestMapper()
	ctx := context.Background()

	if got := m.Map(ctx, "cost", "Usually covered by insurance with a copay", category.TherapistsCounselors); got != "Covered by insurance" {
		t.Errorf("insurance phrase mapped to %q", got)
	}
	if got := m.Map(ctx, "cost", "$120 per session", category.TherapistsCounselors); got != "$100-$149.99/session" {
		t.Errorf("session price mapped to %q", got)
	}
	if got := m.Map(ctx, "cost", "$600", category.MedicalProcedures); got != "$500+" {
		t.Errorf("one-time price mapped to %q", got)
	}
}

func TestMap_FreeKeywordDefersToPrice(t *testing.T) {
	m, _ := newTestMapper()
	ctx := context.Background()

	tests := []struct {
		raw  string
		c    category.Category
		want string
	}{
		// A stated price wins over a mention of a free trial or sample
		{"$30/month after free trial", category.Medications, "$25-$49.99/month"},
		{"Free samples, then $15 a month", category.SupplementsVitamins, "$10-$24.99/month"},
		// Without an amount the keyword still applies
		{"Free at most pharmacies", category.Medications, "Free"},
		{"$0", category.Medications, "Free"},
		// Subscription apps keep the freemium rule
		{"$30/month after free trial", category.AppsSoftware, "Free"},
	}
	for _, tt := range tests {
		t.Run(string(tt.c)+"/"+tt.raw, func(t *testing.T) {
			if got := m.Map(ctx, "cost", tt.raw, tt.c); got != tt.want {
				t.Errorf("Map(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMap_DurationRules(t *testing.T) {
	m, _ := newTestMapper()
	ctx := context.Background()

	tests := []struct {
		field string
		raw   string
		c     category.Category
		want  string
	}{
		{"time_to_results", "2-3 weeks", category.Medications, "3-4 weeks"},
		{"time_to_results", "about two weeks", category.Medications, "1-2 weeks"},
		{"time_to_results", "Felt it right away", category.Medications, "Immediately"},
		{"time_to_results", "4 months", category.Medications, "3-6 months"},
		{"length_of_use", "Still taking it", category.Medications, "Still using"},
		{"length_of_use", "18 months", category.Medications, "1-2 years"},
		{"time_commitment", "15 minutes", category.MeditationMindfulness, "10-20 minutes"},
		{"time_commitment", "2 hours", category.MeditationMindfulness, "Over 1 hour"},
		{"wait_time", "3 weeks", category.DoctorsSpecialists, "2-4 weeks"},
		{"length_of_use", "over 2 years", category.Medications, "Over 2 years"},
		{"length_of_use", "More than 2 years", category.Medications, "Over 2 years"},
		{"length_of_use", "2+ years", category.Medications, "Over 2 years"},
		{"length_of_use", "2 years", category.Medications, "1-2 years"},
		{"length_of_use", "less than 1 month", category.Medications, "Less than 1 month"},
		{"length_of_use", "Less than a month", category.Medications, "Less than 1 month"},
		{"length_of_use", "over 6 months", category.Medications, "6-12 months"},
		{"time_to_results", "over 6 months", category.Medications, "6+ months"},
		{"time_to_results", "Less than a week", category.Medications, "Within days"},
		{"time_to_results", "a week", category.Medications, "1-2 weeks"},
		{"time_to_results", "more than two weeks", category.Medications, "3-4 weeks"},
		{"time_commitment", "over 1 hour", category.MeditationMindfulness, "Over 1 hour"},
		{"time_commitment", "under 5 minutes", category.MeditationMindfulness, "Under 5 minutes"},
		{"time_commitment", "5 minutes", category.MeditationMindfulness, "5-10 minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.raw, func(t *testing.T) {
			if got := m.Map(ctx, tt.field, tt.raw, tt.c); got != tt.want {
				t.Errorf("Map(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMap_FrequencyRules(t *testing.T) {
	m, _ := newTestMapper()
	ctx := context.Background()

	tests := []struct {
		field string
		raw   string
		c     category.Category
		want  string
	}{
		{"frequency", "twice a day with food", category.Medications, "Twice daily"},
		{"frequency", "only when needed", category.Medications, "As needed"},
		{"frequency", "every morning", category.SupplementsVitamins, "Once daily"},
		{"practice_frequency", "3 times a week", category.MeditationMindfulness, "Few times a week"},
		{"session_frequency", "every other week", category.TherapistsCounselors, "Every 2 weeks"},
		{"skincare_frequency", "every night before bed", category.BeautySkincare, "Once daily (PM)"},
		{"skincare_frequency", "morning and night", category.BeautySkincare, "Twice daily"},
		{"frequency", "3 times daily", category.Medications, "Three times daily"},
		{"frequency", "2 times daily", category.Medications, "Twice daily"},
		{"frequency", "Two times daily", category.Medications, "Twice daily"},
		{"frequency", "2x/day", category.Medications, "Twice daily"},
		{"frequency", "1 time per day", category.Medications, "Once daily"},
		{"frequency", "daily", category.Medications, "Once daily"},
		{"skincare_frequency", "2 times daily", category.BeautySkincare, "Twice daily"},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.raw, func(t *testing.T) {
			if got := m.Map(ctx, tt.field, tt.raw, tt.c); got != tt.want {
				t.Errorf("Map(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMap_ArrayFieldKeywords(t *testing.T) {
	m, _ := newTestMapper()
	ctx := context.Background()

	if got := m.Map(ctx, "side_effects", "mild stomach upset", category.Medications); got != "Digestive issues" {
		t.Errorf("side effect mapped to %q", got)
	}
	if got := m.Map(ctx, "side_effects", "No side effects reported", category.Medications); got != "None" {
		t.Errorf("no side effects mapped to %q", got)
	}
	if got := m.Map(ctx, "challenges", "Hard to stay motivated", category.ExerciseMovement); got != "Motivation" {
		t.Errorf("challenge mapped to %q", got)
	}
}

func TestMap_CaseInsensitiveExact(t *testing.T) {
	m, _ := newTestMapper()

	res := m.MapDetailed(context.Background(), "format", "  audiobook ", category.BooksCourses)
	if res.Value != "Audiobook" || res.Method != MethodExact {
		t.Errorf("got %q (%s), want Audiobook (exact)", res.Value, res.Method)
	}

	// A lowercased allowed value is never re-bucketed by a duration rule
	res = m.MapDetailed(context.Background(), "length_of_use", "over 2 years", category.Medications)
	if res.Value != "Over 2 years" || res.Method != MethodExact {
		t.Errorf("got %q (%s), want Over 2 years (exact)", res.Value, res.Method)
	}
}

func TestReplaceNumberWords_WordBoundaries(t *testing.T) {
	tests := map[string]string{
		"more than a week":      "more than 1 week",
		"less than an hour":     "less than 1 hour",
		"a couple of months":    "2 months",
		"someone said two days": "someone said 2 days",
		"often a few weeks":     "often 3 weeks",
	}
	for in, want := range tests {
		if got := replaceNumberWords(in); got != want {
			t.Errorf("replaceNumberWords(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMap_FallbackIsAuditedAndAllowed(t *testing.T) {
	// Given: a value no rule or best match can place
	m, rec := newTestMapper()
	ctx := context.Background()

	// When: mapping it
	res := m.MapDetailed(ctx, "group_size", "zzqx", category.GroupsCommunities)

	// Then: the first allowed value is used and an audit event is recorded
	if res.Method != MethodFallback {
		t.Errorf("expected fallback, got %s", res.Method)
	}
	if !m.IsAllowed("group_size", res.Value, category.GroupsCommunities) {
		t.Errorf("fallback %q not in allowed set", res.Value)
	}
	if rec.Count(audit.KindMappingFallback) != 1 {
		t.Errorf("expected 1 fallback audit event, got %d", rec.Count(audit.KindMappingFallback))
	}
	ev := rec.Events()[0]
	if ev.Field != "group_size" || ev.Subject != "zzqx" || ev.Category != string(category.GroupsCommunities) {
		t.Errorf("unexpected audit event: %+v", ev)
	}
}

func TestMap_EmptyValueFallsBack(t *testing.T) {
	m, rec := newTestMapper()
	got := m.Map(context.Background(), "time_to_results", "   ", category.Sleep)
	if got != "Immediately" {
		t.Errorf("got %q, want first allowed value", got)
	}
	if rec.Count(audit.KindMappingFallback) != 1 {
		t.Error("empty value should be audited as a fallback")
	}
}

func TestMap_PassthroughForFreeText(t *testing.T) {
	m, rec := newTestMapper()
	res := m.MapDetailed(context.Background(), "author", "Brené Brown", category.BooksCourses)
	if res.Value != "Brené Brown" || res.Method != MethodPassthrough {
		t.Errorf("got %+v, want passthrough", res)
	}
	if len(rec.Events()) != 0 {
		t.Error("passthrough should not audit")
	}
}

func TestMap_OutputAlwaysAllowed(t *testing.T) {
	m, _ := newTestMapper()
	r := category.Default()
	ctx := context.Background()
	inputs := []string{"", "n/a", "$99999", "forever", "3 times a day", "weird value", "0 days", "$0"}

	for _, c := range r.Categories() {
		s, _ := r.Lookup(c)
		for _, name := range s.RequiredFields() {
			if _, ok := r.AllowedValues(c, name); !ok {
				continue
			}
			for _, in := range inputs {
				got := m.Map(ctx, name, in, c)
				if !m.IsAllowed(name, got, c) {
					t.Errorf("%s.%s: Map(%q) = %q not allowed", c, name, in, got)
				}
			}
		}
	}
}

func TestNewWithRules_IgnoresRuleOutsideAllowedSet(t *testing.T) {
	bad := Rule{
		Name:   "bogus",
		Fields: []string{"format"},
		apply: func(string, []string) (string, bool) {
			return "Carrier pigeon", true
		},
	}
	m := NewWithRules(category.Default(), nil, []Rule{bad})

	res := m.MapDetailed(context.Background(), "format", "e-book", category.BooksCourses)
	if res.Value != "E-book" || res.Rule == "bogus" {
		t.Errorf("got %+v, rule outside the allowed set should be ignored", res)
	}
}
