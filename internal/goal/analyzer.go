package goal

import (
	"math"
	"time"
)

const (
	// MaxHistory is the number of most recent observations the analyzer looks at.
	MaxHistory = 10

	// stableThreshold is the relative change below which a trend is stable.
	stableThreshold = 0.02

	// offTargetMaintainPercent is reported for maintain goals outside their band.
	offTargetMaintainPercent = 50

	trendWindow = 3
	hoursPerDay = 24
)

// observation is a metric with a numeric value.
type observation struct {
	date  time.Time
	value float64
}

// Analyze computes the progress of g from its metric history ordered newest first.
//
// Observations without a numeric value are ignored and at most MaxHistory observations are used. Analyze never
// fails. Missing data yields a no_data result with unknown placeholders.
func Analyze(g Goal, history []Metric, now time.Time) Progress {
	obs := make([]observation, 0, MaxHistory)
	for _, m := range history {
		if m.Value == nil {
			continue
		}
		obs = append(obs, observation{date: m.Date, value: *m.Value})
		if len(obs) == MaxHistory {
			break
		}
	}

	if len(obs) == 0 {
		return Progress{
			Goal:            g,
			CurrentValue:    nil,
			ProgressPercent: 0,
			Trend:           TrendUnknown,
			OnTrack:         nil,
			DaysToTarget:    nil,
			Recommendation:  "Start tracking " + g.Name + " to see how you are progressing.",
			Status:          ProgressNoData,
			DataPoints:      0,
		}
	}

	current := obs[0].value
	baseline := obs[len(obs)-1].value
	if g.Baseline != nil {
		baseline = *g.Baseline
	}

	percent := progressPercent(g, baseline, current)
	trend := classifyTrend(g.Direction, obs)
	days := daysToTarget(g, obs)
	onTrack := isOnTrack(g, current, trend, days, now)

	status := ProgressInProgress
	if percent >= 100 { //nolint:mnd // percent.
		status = ProgressTargetReached
	}

	return Progress{
		Goal:            g,
		CurrentValue:    &current,
		ProgressPercent: percent,
		Trend:           trend,
		OnTrack:         &onTrack,
		DaysToTarget:    days,
		Recommendation:  adviceFor(g.MetricType)(trend, onTrack),
		Status:          status,
		DataPoints:      len(obs),
	}
}

// progressPercent is clamped to [0, 100].
func progressPercent(g Goal, baseline, current float64) float64 {
	var percent float64
	switch g.Direction {
	case DirectionDecrease:
		if baseline == g.Target {
			return allOrNothing(current <= g.Target)
		}
		percent = (baseline - current) / (baseline - g.Target) * 100 //nolint:mnd // percent.
	case DirectionIncrease:
		if baseline == g.Target {
			return allOrNothing(current >= g.Target)
		}
		percent = (current - baseline) / (g.Target - baseline) * 100 //nolint:mnd // percent.
	case DirectionMaintain:
		if withinBand(g, current) {
			return 100 //nolint:mnd // percent.
		}
		return offTargetMaintainPercent
	}
	return max(0, min(100, percent)) //nolint:mnd // percent.
}

func allOrNothing(reached bool) float64 {
	if reached {
		return 100 //nolint:mnd // percent.
	}
	return 0
}

// withinBand reports whether current satisfies a maintain goal. Without a band the target itself must be hit.
func withinBand(g Goal, current float64) bool {
	if g.MinAcceptable == nil && g.MaxAcceptable == nil {
		return current == g.Target
	}
	if g.MinAcceptable != nil && current < *g.MinAcceptable {
		return false
	}
	if g.MaxAcceptable != nil && current > *g.MaxAcceptable {
		return false
	}
	return true
}

// satisfied reports whether current already meets the goal.
func satisfied(g Goal, current float64) bool {
	switch g.Direction {
	case DirectionDecrease:
		return current <= g.Target
	case DirectionIncrease:
		return current >= g.Target
	case DirectionMaintain:
		return withinBand(g, current)
	}
	return false
}

// classifyTrend compares the mean of the three newest observations with the mean of the next three, or with the
// oldest observation when there are fewer than four.
//
// Maintain goals use the increase convention, so any rise counts as improving.
func classifyTrend(direction Direction, obs []observation) Trend {
	n := len(obs)
	if n < 2 { //nolint:mnd // a trend needs two points.
		return TrendUnknown
	}
	recent := mean(obs[:min(trendWindow, n)])
	older := obs[n-1].value
	if n > trendWindow {
		older = mean(obs[trendWindow:min(2*trendWindow, n)])
	}

	diff := recent - older
	if diff == 0 || math.Abs(diff) < stableThreshold*math.Abs(older) {
		return TrendStable
	}
	if (direction == DirectionDecrease) == (diff < 0) {
		return TrendImproving
	}
	return TrendDeclining
}

func mean(obs []observation) float64 {
	var sum float64
	for _, o := range obs {
		sum += o.value
	}
	return sum / float64(len(obs))
}

// daysToTarget extrapolates linearly between the oldest and newest observation.
//
// It is zero when the goal is already met and nil when there are too few observations, no elapsed time, no change,
// or the change moves away from the target.
func daysToTarget(g Goal, obs []observation) *int {
	newest, oldest := obs[0], obs[len(obs)-1]
	if satisfied(g, newest.value) {
		return new(int)
	}
	if len(obs) < 2 { //nolint:mnd // a rate needs two points.
		return nil
	}
	elapsed := newest.date.Sub(oldest.date).Hours() / hoursPerDay
	if elapsed <= 0 {
		return nil
	}
	rate := (newest.value - oldest.value) / elapsed
	if rate == 0 {
		return nil
	}
	days := (g.Target - newest.value) / rate
	if days <= 0 || math.IsInf(days, 0) || math.IsNaN(days) {
		return nil
	}
	d := int(math.Ceil(days))
	return &d
}

// isOnTrack decides whether the goal will be met in time.
func isOnTrack(g Goal, current float64, trend Trend, days *int, now time.Time) bool {
	if g.TargetDate == nil {
		return trend == TrendImproving
	}
	today := truncateDay(now)
	target := truncateDay(*g.TargetDate)
	if target.Before(today) {
		return satisfied(g, current)
	}
	if days == nil {
		return trend == TrendImproving
	}
	remaining := int(target.Sub(today).Hours() / hoursPerDay)
	return *days <= remaining
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
