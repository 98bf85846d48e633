// Package coverage classifies goals by how many solutions they have and
// selects the next goals to generate for.
package coverage

import (
	"errors"
	"fmt"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// State is a goal's coverage state.
type State string

const (
	StateUncovered    State = "uncovered"
	StateBelowMinimum State = "below_minimum"
	StateBelowTarget  State = "below_target"
	StateAtTarget     State = "at_target"
	StateSaturated    State = "saturated"
)

// States lists every state in progression order.
var States = []State{StateUncovered, StateBelowMinimum, StateBelowTarget, StateAtTarget, StateSaturated}

// ErrInvalidThresholds is returned when thresholds are not ordered
// 0 < minimum <= target <= maximum.
var ErrInvalidThresholds = errors.New("invalid coverage thresholds")

// Thresholds are per-goal solution counts shared by every goal.
type Thresholds struct {
	Minimum int `yaml:"minimum" json:"minimum"`
	Target  int `yaml:"target" json:"target"`
	Maximum int `yaml:"maximum" json:"maximum"`
}

// Validate checks the threshold ordering.
func (t Thresholds) Validate() error {
	if t.Minimum <= 0 || t.Target < t.Minimum || t.Maximum < t.Target {
		return fmt.Errorf("%w: minimum=%d target=%d maximum=%d", ErrInvalidThresholds, t.Minimum, t.Target, t.Maximum)
	}
	return nil
}

// StateOf classifies a solution count.
func (t Thresholds) StateOf(count int) State {
	switch {
	case count <= 0:
		return StateUncovered
	case count >= t.Maximum:
		return StateSaturated
	case count < t.Minimum:
		return StateBelowMinimum
	case count < t.Target:
		return StateBelowTarget
	default:
		return StateAtTarget
	}
}

// Summarize builds a progress summary from a snapshot. Completion is the
// share of goals at or above target.
func Summarize(snapshot []types.GoalCoverage, t Thresholds, now time.Time) types.CoverageSummary {
	sum := types.CoverageSummary{
		TotalGoals: len(snapshot),
		ByState:    make(map[string]int, len(States)),
		ByArena:    make(map[string]int),
		RecordedAt: now.UTC(),
	}
	for _, s := range States {
		sum.ByState[string(s)] = 0
	}

	done := 0
	for _, gc := range snapshot {
		n := gc.Count()
		sum.TotalSolutions += n
		st := t.StateOf(n)
		sum.ByState[string(st)]++
		if st == StateUncovered {
			sum.ByArena[gc.Goal.Arena]++
		}
		if st == StateAtTarget || st == StateSaturated {
			done++
		}
	}
	if sum.TotalGoals > 0 {
		sum.Completion = float64(done) / float64(sum.TotalGoals)
	}
	return sum
}
