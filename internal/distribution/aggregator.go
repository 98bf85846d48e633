// Package distribution folds raw (value, percentage) observations for one
// field into a canonical distribution.
package distribution

import (
	"context"
	"math"
	"sort"

	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// Tolerance is the largest deviation from 100 left uncorrected.
const Tolerance = 2.0

// Mapper canonicalizes one raw value. Implemented by mapping.Mapper.
type Mapper interface {
	Map(ctx context.Context, field, raw string, c category.Category) string
}

// Aggregator builds canonical distributions.
type Aggregator struct {
	mapper Mapper
}

// NewAggregator creates an Aggregator that canonicalizes through mapper.
func NewAggregator(mapper Mapper) *Aggregator {
	return &Aggregator{mapper: mapper}
}

type bucket struct {
	value   string
	percent float64
	count   int
}

// Aggregate maps, merges, sorts and normalizes obs. Empty input yields the
// zero Distribution with an empty Values slice.
func (a *Aggregator) Aggregate(ctx context.Context, field string, c category.Category, obs []types.Observation) types.Distribution {
	if len(obs) == 0 {
		return types.Distribution{Values: []types.DistributionValue{}}
	}

	// Group by canonical value, first-seen order
	var buckets []*bucket
	index := make(map[string]*bucket, len(obs))
	for _, o := range obs {
		v := a.mapper.Map(ctx, field, o.Name, c)
		b, ok := index[v]
		if !ok {
			b = &bucket{value: v}
			index[v] = b
			buckets = append(buckets, b)
		}
		b.percent += sanitize(o.Percentage)
		b.count++
	}

	sortBuckets(buckets)
	normalize(buckets)
	sortBuckets(buckets)

	values := make([]types.DistributionValue, len(buckets))
	for i, b := range buckets {
		values[i] = types.DistributionValue{
			Value:      b.value,
			Percentage: round1(b.percent),
			Count:      b.count,
		}
	}

	return types.Distribution{
		Mode:         values[0].Value,
		Values:       values,
		TotalReports: 1,
	}
}

// normalize adds the residual to the largest bucket when the total is more
// than Tolerance away from 100. A negative residual that would take the
// largest bucket below zero carries the remainder to the next bucket.
func normalize(buckets []*bucket) {
	var total float64
	for _, b := range buckets {
		total += b.percent
	}
	residual := 100 - total
	if math.Abs(residual) <= Tolerance {
		return
	}

	for _, b := range buckets {
		next := b.percent + residual
		if next >= 0 {
			b.percent = next
			return
		}
		residual = next
		b.percent = 0
	}
}

func sortBuckets(buckets []*bucket) {
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].percent > buckets[j].percent
	})
}

func sanitize(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0
	}
	return p
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
