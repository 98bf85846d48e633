package coverage

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// Strategy names a goal selection strategy.
type Strategy string

const (
	BreadthFirst  Strategy = "breadth_first"
	DepthFirst    Strategy = "depth_first"
	ArenaBased    Strategy = "arena_based"
	PriorityBased Strategy = "priority_based"
	Random        Strategy = "random"
)

// ErrUnknownStrategy is returned for an unrecognized strategy name.
var ErrUnknownStrategy = errors.New("unknown selection strategy")

// ParseStrategy converts a name to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case BreadthFirst, DepthFirst, ArenaBased, PriorityBased, Random:
		return st, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownStrategy)
}

// Options parameterize selection.
type Options struct {
	Thresholds Thresholds

	// ArenaOrder lists arenas in priority order for arena_based. Arenas not
	// listed follow in lexical order.
	ArenaOrder []string

	// ArenaWeights weight arenas for priority_based. Missing arenas weigh 1.
	ArenaWeights map[string]float64

	// Seed drives the random strategy.
	Seed uint64
}

// SelectFrom applies a strategy to a coverage snapshot and returns at most n
// goals. It never returns a saturated goal. n <= 0 means no limit.
func SelectFrom(snapshot []types.GoalCoverage, strategy Strategy, n int, opts Options) ([]types.GoalCoverage, error) {
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}

	var out []types.GoalCoverage
	switch strategy {
	case BreadthFirst:
		out = breadthFirst(snapshot, opts.Thresholds)
	case DepthFirst:
		out = depthFirst(snapshot, opts.Thresholds)
	case ArenaBased:
		out = arenaBased(snapshot, opts)
	case PriorityBased:
		out = priorityBased(snapshot, opts)
	case Random:
		out = randomSample(snapshot, opts)
	default:
		return nil, fmt.Errorf("%q: %w", strategy, ErrUnknownStrategy)
	}

	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func filter(snapshot []types.GoalCoverage, keep func(types.GoalCoverage) bool) []types.GoalCoverage {
	out := make([]types.GoalCoverage, 0, len(snapshot))
	for _, gc := range snapshot {
		if keep(gc) {
			out = append(out, gc)
		}
	}
	return out
}

// less orders two goals by title then id so every strategy is stable
// regardless of snapshot order.
func less(a, b types.GoalCoverage) bool {
	at, bt := strings.ToLower(a.Goal.Title), strings.ToLower(b.Goal.Title)
	if at != bt {
		return at < bt
	}
	return a.Goal.ID < b.Goal.ID
}

func breadthFirst(snapshot []types.GoalCoverage, t Thresholds) []types.GoalCoverage {
	out := filter(snapshot, func(gc types.GoalCoverage) bool {
		return gc.Count() < t.Minimum && gc.Count() < t.Maximum
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count() != out[j].Count() {
			return out[i].Count() < out[j].Count()
		}
		return less(out[i], out[j])
	})
	return out
}

func depthFirst(snapshot []types.GoalCoverage, t Thresholds) []types.GoalCoverage {
	out := filter(snapshot, func(gc types.GoalCoverage) bool {
		n := gc.Count()
		return n > 0 && n < t.Target && n < t.Maximum
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count() != out[j].Count() {
			return out[i].Count() > out[j].Count()
		}
		return less(out[i], out[j])
	})
	return out
}

func arenaBased(snapshot []types.GoalCoverage, opts Options) []types.GoalCoverage {
	byArena := make(map[string][]types.GoalCoverage)
	for _, gc := range breadthFirst(snapshot, opts.Thresholds) {
		byArena[gc.Goal.Arena] = append(byArena[gc.Goal.Arena], gc)
	}
	if len(byArena) == 0 {
		return nil
	}

	listed := make(map[string]bool, len(opts.ArenaOrder))
	for _, a := range opts.ArenaOrder {
		listed[a] = true
		if goals, ok := byArena[a]; ok {
			return goals
		}
	}

	rest := make([]string, 0, len(byArena))
	for a := range byArena {
		if !listed[a] {
			rest = append(rest, a)
		}
	}
	sort.Strings(rest)
	return byArena[rest[0]]
}

// Score is the priority_based weight of one goal:
// arena weight * coverage gap weight * user interest weight.
func Score(gc types.GoalCoverage, opts Options) float64 {
	arena := 1.0
	if w, ok := opts.ArenaWeights[gc.Goal.Arena]; ok && w >= 0 {
		arena = w
	}
	gap := 1 - float64(gc.Count())/float64(opts.Thresholds.Maximum)
	if gc.Count() < opts.Thresholds.Minimum {
		gap *= 2
	}
	interest := 1 + math.Log1p(math.Max(0, float64(gc.Goal.UserInterest)))
	return arena * gap * interest
}

func priorityBased(snapshot []types.GoalCoverage, opts Options) []types.GoalCoverage {
	type scored struct {
		gc    types.GoalCoverage
		score float64
	}
	var items []scored
	for _, gc := range snapshot {
		if gc.Count() >= opts.Thresholds.Maximum {
			continue
		}
		items = append(items, scored{gc: gc, score: Score(gc, opts)})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return less(items[i].gc, items[j].gc)
	})
	out := make([]types.GoalCoverage, len(items))
	for i, it := range items {
		out[i] = it.gc
	}
	return out
}

func randomSample(snapshot []types.GoalCoverage, opts Options) []types.GoalCoverage {
	out := filter(snapshot, func(gc types.GoalCoverage) bool {
		return gc.Count() < opts.Thresholds.Maximum
	})
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	r := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
