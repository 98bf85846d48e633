package inserter

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// MaxVariantNameLength is the longest variant name stored, in runes.
const MaxVariantNameLength = 100

// VariantName derives a deterministic name from a variant descriptor, such
// as "10mg tablet". An empty descriptor yields the standard variant name.
func VariantName(spec types.VariantSpec) string {
	var parts []string

	unit := strings.TrimSpace(spec.Unit)
	if spec.Amount > 0 {
		parts = append(parts, strconv.FormatFloat(spec.Amount, 'f', -1, 64)+unit)
	} else if unit != "" {
		parts = append(parts, unit)
	}
	if form := strings.TrimSpace(spec.Form); form != "" {
		parts = append(parts, form)
	}

	name := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if name == "" {
		return category.StandardVariant
	}
	return truncateRunes(name, MaxVariantNameLength)
}

// Variants resolves the variant rows a candidate should own. Categories that
// are not variant-bearing always get a single standard variant.
func Variants(schema category.Schema, specs []types.VariantSpec) []types.Variant {
	standard := []types.Variant{{Name: category.StandardVariant, IsDefault: true}}
	if !schema.VariantBearing || len(specs) == 0 {
		return standard
	}

	seen := make(map[string]bool, len(specs))
	var out []types.Variant
	for _, spec := range specs {
		name := VariantName(spec)
		if seen[name] {
			continue
		}
		seen[name] = true

		v := types.Variant{
			Name:      name,
			Unit:      strings.TrimSpace(spec.Unit),
			Form:      strings.TrimSpace(spec.Form),
			IsDefault: len(out) == 0,
		}
		if spec.Amount > 0 {
			a := spec.Amount
			v.Amount = &a
		}
		out = append(out, v)
	}
	return out
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
