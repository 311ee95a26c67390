package goal

import "strings"

// adviceFunc turns the trend and on-track state of a goal into coaching guidance.
type adviceFunc func(trend Trend, onTrack bool) string

// rule is one row of an advice table. The first matching row wins.
type rule struct {
	when func(trend Trend, onTrack bool) bool
	text string
}

func always(Trend, bool) bool { return true }

func trendIs(want Trend) func(Trend, bool) bool {
	return func(trend Trend, _ bool) bool { return trend == want }
}

func offTrack(_ Trend, onTrack bool) bool { return !onTrack }

func onTrackAnd(want Trend) func(Trend, bool) bool {
	return func(trend Trend, onTrack bool) bool { return onTrack && trend == want }
}

func table(rules ...rule) adviceFunc {
	return func(trend Trend, onTrack bool) string {
		for _, r := range rules {
			if r.when(trend, onTrack) {
				return r.text
			}
		}
		return genericAdvice(trend, onTrack)
	}
}

// genericAdvice covers metric types without their own table.
func genericAdvice(trend Trend, onTrack bool) string {
	switch {
	case trend == TrendDeclining:
		return "This metric is moving the wrong way. Review recent training and recovery before adding load."
	case !onTrack:
		return "Progress is slower than needed. Increase consistency and reassess in two weeks."
	case trend == TrendImproving:
		return "Good progress. Keep the current approach."
	default:
		return "Keep measuring regularly so the trend becomes clear."
	}
}

//nolint:gochecknoglobals // advice tables are static data.
var (
	explosiveAdvice = table(
		rule{trendIs(TrendDeclining), "Jump performance is dropping. Prioritise freshness: " +
			"plyometrics early in the session and at least 48 hours after heavy lower-body work."},
		rule{offTrack, "Add two short plyometric blocks per week (box jumps, bounds) with full rest between reps."},
		rule{onTrackAnd(TrendImproving), "Power is improving. Keep contrast sets and low-volume, high-quality jumps."},
		rule{always, "Maintain one weekly power session and retest monthly."},
	)

	swimAdvice = table(
		rule{trendIs(TrendDeclining), "Swim times are slowing. Check fatigue and focus on technique sets " +
			"at easy effort this week."},
		rule{offTrack, "Add one threshold swim session per week, e.g. 8x100m at goal pace with 20s rest."},
		rule{onTrackAnd(TrendImproving), "Times are dropping. Keep the interval work and add race-pace efforts."},
		rule{always, "Keep two swims per week and retest every four weeks."},
	)

	// adviceTable maps metric types to their advice. Lookups fall back to the family matchers and then to
	// genericAdvice.
	adviceTable = map[string]adviceFunc{
		"body_fat": table(
			rule{trendIs(TrendDeclining), "Body fat is rising. Review nutrition and keep a small, " +
				"consistent calorie deficit with high protein."},
			rule{offTrack, "Fat loss is behind schedule. Tighten nutrition tracking and add one easy aerobic " +
				"session per week."},
			rule{onTrackAnd(TrendImproving), "Body composition is improving. Keep protein high and strength " +
				"training consistent."},
			rule{always, "Body fat is steady. Re-measure under the same conditions each time."},
		),
		"vo2_max": table(
			rule{trendIs(TrendDeclining), "VO2max is slipping. Make sure easy days stay easy and add one " +
				"interval session (4x4 min at 90-95% max heart rate)."},
			rule{offTrack, "Aerobic fitness is behind target. Add an extra zone 2 session and keep one " +
				"weekly high-intensity interval session."},
			rule{onTrackAnd(TrendImproving), "VO2max is climbing. Keep the mix of zone 2 volume and intervals."},
			rule{always, "Aerobic fitness is holding. Add variety with hill repeats or tempo efforts."},
		),
		"vertical_jump": explosiveAdvice,
		"broad_jump":    explosiveAdvice,
	}

	adviceFamilies = []struct {
		match  func(metricType string) bool
		advice adviceFunc
	}{
		{IsSwimTime, swimAdvice},
		{func(metricType string) bool { return strings.HasSuffix(metricType, "_jump") }, explosiveAdvice},
	}
)

// adviceFor resolves the advice for a metric type.
func adviceFor(metricType string) adviceFunc {
	if advice, ok := adviceTable[metricType]; ok {
		return advice
	}
	for _, family := range adviceFamilies {
		if family.match(metricType) {
			return family.advice
		}
	}
	return genericAdvice
}

// IsSwimTime reports whether metricType is a timed swim such as swim_400m_time.
func IsSwimTime(metricType string) bool {
	return strings.HasPrefix(metricType, "swim_") && strings.HasSuffix(metricType, "_time")
}

// IsCardio reports whether metricType measures aerobic capacity.
func IsCardio(metricType string) bool {
	return metricType == "vo2_max" || IsSwimTime(metricType)
}
