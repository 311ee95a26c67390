package plan

import (
	"slices"
	"strings"

	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/wellness"
)

const (
	readinessThreshold = 40
	sleepThreshold     = 60
	readinessIntensity = 0.8
	sleepIntensity     = 0.85
)

// Changes are the structured suggestions of an adjustment.
type Changes struct {
	IntensityModifier *float64 `json:"intensity_modifier,omitempty"`
	ReduceVolume      bool     `json:"reduce_volume,omitempty"`
	AddRecoveryDay    bool     `json:"add_recovery_day,omitempty"`
	ConsiderDeload    bool     `json:"consider_deload,omitempty"`
}

// Adjustment is the outcome of Evaluate.
type Adjustment struct {
	Needed  bool    `json:"needed"`
	Reason  string  `json:"reason"`
	Changes Changes `json:"changes"`
}

// Evaluate decides whether the plan should be eased off. Triggers combine: the lowest intensity modifier wins.
// A nil snapshot only lets the performance trend trigger.
func Evaluate(snapshot *wellness.Snapshot, performance goal.Trend) Adjustment {
	var (
		a       Adjustment
		reasons []string
	)
	lowerIntensity := func(v float64) {
		if a.Changes.IntensityModifier == nil || v < *a.Changes.IntensityModifier {
			a.Changes.IntensityModifier = &v
		}
	}

	if snapshot != nil {
		if r := snapshot.TrainingReadiness; r != nil && *r < readinessThreshold {
			lowerIntensity(readinessIntensity)
			a.Changes.ReduceVolume = true
			reasons = append(reasons, "low training readiness")
		}
		if slices.Contains([]string{"low", "poor"}, strings.ToLower(snapshot.HRVStatus)) {
			a.Changes.AddRecoveryDay = true
			reasons = append(reasons, "HRV status "+strings.ToLower(snapshot.HRVStatus))
		}
		if s := snapshot.SleepScore; s != nil && *s < sleepThreshold {
			lowerIntensity(sleepIntensity)
			reasons = append(reasons, "poor sleep")
		}
	}
	if performance == goal.TrendDeclining {
		a.Changes.ConsiderDeload = true
		reasons = append(reasons, "declining performance")
	}

	a.Needed = len(reasons) > 0
	a.Reason = strings.Join(reasons, "; ")
	return a
}
