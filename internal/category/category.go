// Package category holds the fixed solution category enumeration and the
// per-category field schemas. A Registry is built once at startup and passed
// explicitly to every component that needs schema lookups.
package category

import (
	"errors"
	"fmt"
	"sort"
)

// Category is one of the fixed solution categories.
type Category string

const (
	AppsSoftware            Category = "apps_software"
	Medications             Category = "medications"
	SupplementsVitamins     Category = "supplements_vitamins"
	NaturalRemedies         Category = "natural_remedies"
	BeautySkincare          Category = "beauty_skincare"
	ExerciseMovement        Category = "exercise_movement"
	MeditationMindfulness   Category = "meditation_mindfulness"
	HabitsRoutines          Category = "habits_routines"
	HobbiesActivities       Category = "hobbies_activities"
	GroupsCommunities       Category = "groups_communities"
	SupportGroups           Category = "support_groups"
	DietNutrition           Category = "diet_nutrition"
	Sleep                   Category = "sleep"
	ProductsDevices         Category = "products_devices"
	BooksCourses            Category = "books_courses"
	TherapistsCounselors    Category = "therapists_counselors"
	DoctorsSpecialists      Category = "doctors_specialists"
	CoachesMentors          Category = "coaches_mentors"
	AlternativePractitioner Category = "alternative_practitioners"
	ProfessionalServices    Category = "professional_services"
	MedicalProcedures       Category = "medical_procedures"
	CrisisResources         Category = "crisis_resources"
	FinancialProducts       Category = "financial_products"
)

// StandardVariant is the variant name used by categories without variants.
const StandardVariant = "Standard"

// ErrUnknownCategory is returned when a string does not name a known category.
var ErrUnknownCategory = errors.New("unknown category")

// Field describes one required field of a category.
// A nil Allowed slice means the field is free text.
type Field struct {
	Name    string
	Allowed []string
}

// Enumerated reports whether the field has a fixed allowed-value set.
func (f Field) Enumerated() bool {
	return len(f.Allowed) > 0
}

// Schema is the immutable description of a single category.
type Schema struct {
	Category Category
	Fields   []Field

	// ArrayField is the single multi-valued field (side effects, challenges).
	ArrayField   string
	ArrayAllowed []string

	VariantBearing bool

	// MinEffectiveness is the lowest projected effectiveness (1-5 scale)
	// a new connection may have.
	MinEffectiveness float64

	// MaxNewConnections caps how many new goals one solution may attach to
	// in a single generation run.
	MaxNewConnections int
}

// RequiredFields returns the names of all required fields, including the
// array field when the schema declares one.
func (s Schema) RequiredFields() []string {
	names := make([]string, 0, len(s.Fields)+1)
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	if s.ArrayField != "" {
		names = append(names, s.ArrayField)
	}
	return names
}

// Field returns the named field. The array field is reported as a Field
// with its allowed values.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	if name != "" && name == s.ArrayField {
		return Field{Name: s.ArrayField, Allowed: s.ArrayAllowed}, true
	}
	return Field{}, false
}

// Thresholds overrides the credibility thresholds of one category.
// Zero values leave the built-in value in place.
type Thresholds struct {
	MinEffectiveness  float64
	MaxNewConnections int
}

// Registry is a read-only lookup table of schemas keyed by category.
// It is safe for concurrent use because it is never mutated after NewRegistry.
type Registry struct {
	schemas map[Category]Schema
}

// NewRegistry builds the registry from the built-in schemas, applying any
// threshold overrides. Overrides naming unknown categories are rejected.
func NewRegistry(overrides map[Category]Thresholds) (*Registry, error) {
	schemas := builtinSchemas()
	for c, o := range overrides {
		s, ok := schemas[c]
		if !ok {
			return nil, fmt.Errorf("threshold override for %q: %w", c, ErrUnknownCategory)
		}
		if o.MinEffectiveness < 0 || o.MinEffectiveness > 5 {
			return nil, fmt.Errorf("threshold override for %q: min effectiveness %.2f out of range", c, o.MinEffectiveness)
		}
		if o.MaxNewConnections < 0 {
			return nil, fmt.Errorf("threshold override for %q: negative fan-out cap", c)
		}
		if o.MinEffectiveness > 0 {
			s.MinEffectiveness = o.MinEffectiveness
		}
		if o.MaxNewConnections > 0 {
			s.MaxNewConnections = o.MaxNewConnections
		}
		schemas[c] = s
	}
	return &Registry{schemas: schemas}, nil
}

// Default returns the registry with built-in thresholds.
func Default() *Registry {
	return &Registry{schemas: builtinSchemas()}
}

// Lookup returns the schema for a category.
func (r *Registry) Lookup(c Category) (Schema, bool) {
	s, ok := r.schemas[c]
	return s, ok
}

// AllowedValues returns the allowed values of a field for a category.
// The boolean is false when the field has no enumerated schema.
func (r *Registry) AllowedValues(c Category, field string) ([]string, bool) {
	s, ok := r.schemas[c]
	if !ok {
		return nil, false
	}
	f, ok := s.Field(field)
	if !ok || !f.Enumerated() {
		return nil, false
	}
	return f.Allowed, true
}

// Categories returns all categories in lexical order.
func (r *Registry) Categories() []Category {
	out := make([]Category, 0, len(r.schemas))
	for c := range r.schemas {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse converts a string to a known Category.
func Parse(s string) (Category, error) {
	c := Category(s)
	if _, ok := builtinSchemas()[c]; !ok {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownCategory)
	}
	return c, nil
}
