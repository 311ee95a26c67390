package wellness

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrProviderUnavailable is returned by providers that are not configured or cannot be reached.
	ErrProviderUnavailable = errors.New("wellness provider unavailable")
	// ErrInvalidActivity is returned when an imported activity is missing required fields.
	ErrInvalidActivity = errors.New("invalid activity")
)

// Activity types used in the activity log.
const (
	TypeRun      = "run"
	TypeSwim     = "swim"
	TypeBike     = "bike"
	TypeStrength = "strength"
	TypeOther    = "other"
)

// Activity sources.
const (
	SourceProvider = "provider"
	SourceStrength = "strength_log"
	SourceFIT      = "fit"
)

// IsCardio reports whether the activity type counts as a cardio session.
func IsCardio(activityType string) bool {
	switch activityType {
	case TypeRun, TypeSwim, TypeBike:
		return true
	default:
		return false
	}
}

// Snapshot is the daily wellness reading from the wearable. Missing readings are nil.
type Snapshot struct {
	AthleteID         int             `json:"athlete_id"`
	Date              time.Time       `json:"date"`
	SleepScore        *int            `json:"sleep_score,omitempty"`
	HRV               *float64        `json:"hrv,omitempty"`
	HRVStatus         string          `json:"hrv_status,omitempty"`
	TrainingReadiness *int            `json:"training_readiness,omitempty"`
	RestingHR         *int            `json:"resting_hr,omitempty"`
	Stress            *int            `json:"stress,omitempty"`
	BodyBatteryHigh   *int            `json:"body_battery_high,omitempty"`
	BodyBatteryLow    *int            `json:"body_battery_low,omitempty"`
	Steps             *int            `json:"steps,omitempty"`
	VO2Max            *float64        `json:"vo2_max,omitempty"`
	Raw               json.RawMessage `json:"-"`
}

// Activity is one completed session in the activity log.
type Activity struct {
	ID              int             `json:"id"`
	AthleteID       int             `json:"athlete_id"`
	Source          string          `json:"source"`
	ExternalID      string          `json:"external_id"`
	Type            string          `json:"type"`
	Name            string          `json:"name"`
	Date            time.Time       `json:"date"`
	DurationMinutes float64         `json:"duration_minutes"`
	DistanceMeters  float64         `json:"distance_meters"`
	VolumeKg        *float64        `json:"volume_kg,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// Daily is what a provider returns for one date.
type Daily struct {
	Snapshot   Snapshot   `json:"snapshot"`
	Activities []Activity `json:"activities"`
}

// StrengthSession is a completed session from the strength log.
type StrengthSession struct {
	ExternalID      string             `json:"external_id"`
	Name            string             `json:"name"`
	Date            time.Time          `json:"date"`
	DurationMinutes float64            `json:"duration_minutes"`
	Exercises       []StrengthExercise `json:"exercises"`
}

// StrengthExercise groups the sets of one exercise.
type StrengthExercise struct {
	Name string        `json:"name"`
	Sets []StrengthSet `json:"sets"`
}

// StrengthSet is one set of an exercise.
type StrengthSet struct {
	Reps     int     `json:"reps"`
	WeightKg float64 `json:"weight_kg"`
}

// Volume is the total weight moved, Σ(weight × reps).
func (s StrengthSession) Volume() float64 {
	var volume float64
	for _, e := range s.Exercises {
		for _, set := range e.Sets {
			volume += set.WeightKg * float64(set.Reps)
		}
	}
	return volume
}

// ActivitySummary aggregates completed activities over a window.
type ActivitySummary struct {
	Days             int            `json:"days"`
	CountsByType     map[string]int `json:"counts_by_type"`
	TotalMinutes     float64        `json:"total_minutes"`
	CardioSessions   int            `json:"cardio_sessions"`
	StrengthSessions int            `json:"strength_sessions"`
}

// Averages are the mean wellness readings over a window. Readings never observed in the window are nil.
type Averages struct {
	Days              int      `json:"days"`
	SleepScore        *float64 `json:"sleep_score,omitempty"`
	HRV               *float64 `json:"hrv,omitempty"`
	TrainingReadiness *float64 `json:"training_readiness,omitempty"`
	RestingHR         *float64 `json:"resting_hr,omitempty"`
	Stress            *float64 `json:"stress,omitempty"`
	Steps             *float64 `json:"steps,omitempty"`
}
