// Package recommend turns goal progress, recent training, and recovery state into coaching recommendations and a
// seven day workout template.
package recommend

import (
	"time"

	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/wellness"
)

// Priority orders recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Thresholds of the recommendation rules.
const (
	minSessions         = 2
	lowReadiness        = 50
	lowSleep            = 60
	maxRestConversions  = 1
	extraAerobicMinutes = 40
)

// Session types of the weekly template.
const (
	SessionStrength      = "strength"
	SessionIntervals     = "intervals"
	SessionAerobic       = "aerobic"
	SessionLongAerobic   = "long_aerobic"
	SessionMobility      = "mobility"
	SessionLightStrength = "light_strength"
	SessionEasyAerobic   = "easy_aerobic"
	SessionRest          = "rest"
)

// Recommendation is one piece of advice for the coming week.
type Recommendation struct {
	Priority Priority `json:"priority"`
	Area     string   `json:"area"`
	Text     string   `json:"text"`
}

// Day is one day of the weekly template.
type Day struct {
	Weekday         time.Weekday `json:"weekday"`
	Session         string       `json:"session"`
	Description     string       `json:"description"`
	DurationMinutes int          `json:"duration_minutes"`
}

// Result is the output of Recommend.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	// PriorityFocus is the metric type of the first goal that is behind, if any.
	PriorityFocus string `json:"priority_focus,omitempty"`
	Recovered     bool   `json:"recovered"`
	Template      []Day  `json:"template"`
}

// Recommend evaluates the rules in order. Every rule applies independently.
func Recommend(progress []goal.Progress, summary wellness.ActivitySummary, snapshot *wellness.Snapshot) Result {
	var result Result

	for _, p := range progress {
		if !p.Behind() {
			continue
		}
		result.Recommendations = append(result.Recommendations, Recommendation{
			Priority: PriorityHigh,
			Area:     p.Goal.MetricType,
			Text:     p.Recommendation,
		})
		if result.PriorityFocus == "" {
			result.PriorityFocus = p.Goal.MetricType
		}
	}

	if summary.CardioSessions < minSessions {
		result.Recommendations = append(result.Recommendations, Recommendation{
			Priority: PriorityMedium,
			Area:     "cardio",
			Text:     "Fewer than two cardio sessions in the last two weeks. Add a run, swim, or ride this week.",
		})
	}
	if summary.StrengthSessions < minSessions {
		result.Recommendations = append(result.Recommendations, Recommendation{
			Priority: PriorityMedium,
			Area:     "strength",
			Text:     "Fewer than two strength sessions in the last two weeks. Schedule two full-body sessions.",
		})
	}

	var readiness, sleep *int
	if snapshot != nil {
		readiness, sleep = snapshot.TrainingReadiness, snapshot.SleepScore
	}
	if readiness != nil && *readiness < lowReadiness {
		result.Recommendations = append(result.Recommendations, Recommendation{
			Priority: PriorityHigh,
			Area:     "recovery",
			Text:     "Training readiness is low. Reduce load and take an extra rest day.",
		})
	}
	if sleep != nil && *sleep < lowSleep {
		result.Recommendations = append(result.Recommendations, Recommendation{
			Priority: PriorityMedium,
			Area:     "sleep",
			Text:     "Sleep quality is poor. Aim for a consistent bedtime and 8 hours in bed.",
		})
	}

	result.Recovered = readiness == nil || *readiness >= lowReadiness
	if result.Recovered {
		result.Template = recoveredTemplate()
	} else {
		result.Template = lightTemplate()
	}
	convertRestDays(result.Template, progress)
	return result
}

// convertRestDays turns the first rest day into an aerobic session when a cardio goal is off track. At most
// maxRestConversions days are converted however many goals qualify.
func convertRestDays(template []Day, progress []goal.Progress) {
	converted := 0
	for _, p := range progress {
		if converted >= maxRestConversions {
			return
		}
		if p.OnTrack == nil || *p.OnTrack || !goal.IsCardio(p.Goal.MetricType) {
			continue
		}
		for i := range template {
			if template[i].Session != SessionRest {
				continue
			}
			template[i] = Day{
				Weekday:         template[i].Weekday,
				Session:         SessionAerobic,
				Description:     "Extra zone 2 aerobic session for " + p.Goal.Name + ".",
				DurationMinutes: extraAerobicMinutes,
			}
			converted++
			break
		}
	}
}

func recoveredTemplate() []Day {
	return []Day{
		{time.Monday, SessionStrength, "Full-body strength, compound lifts.", 60},
		{time.Tuesday, SessionIntervals, "High-intensity intervals, 4x4 minutes hard.", 45},
		{time.Wednesday, SessionAerobic, "Zone 2 aerobic session.", 45},
		{time.Thursday, SessionStrength, "Strength with power focus: jumps and Olympic lift variations.", 60},
		{time.Friday, SessionMobility, "Mobility and core.", 30},
		{time.Saturday, SessionLongAerobic, "Long easy aerobic session.", 90},
		{time.Sunday, SessionRest, "Rest.", 0},
	}
}

func lightTemplate() []Day {
	return []Day{
		{time.Monday, SessionLightStrength, "Light full-body strength, two sets per exercise.", 40},
		{time.Tuesday, SessionRest, "Rest.", 0},
		{time.Wednesday, SessionEasyAerobic, "Easy aerobic session, conversational pace.", 30},
		{time.Thursday, SessionRest, "Rest.", 0},
		{time.Friday, SessionLightStrength, "Light strength and technique work.", 40},
		{time.Saturday, SessionMobility, "Mobility and stretching.", 30},
		{time.Sunday, SessionRest, "Rest.", 0},
	}
}
