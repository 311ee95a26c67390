// Package advisor asks an external evaluator, typically an LLM, to review the training week and propose plan
// modifications.
package advisor

import (
	"context"
	"errors"

	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/plan"
	"github.com/myrjola/fitcoach/internal/recommend"
	"github.com/myrjola/fitcoach/internal/wellness"
)

var (
	// ErrUnavailable is returned when the evaluator is not configured or the upstream call fails.
	ErrUnavailable = errors.New("advisor unavailable")
	// ErrMalformedResponse is returned when the evaluator reply cannot be read as an evaluation.
	ErrMalformedResponse = errors.New("malformed advisor response")
)

// Evaluator reviews a payload and proposes modifications.
type Evaluator interface {
	Evaluate(ctx context.Context, payload Payload) (Evaluation, error)
}

// Unavailable is the evaluator used when no advisor is configured.
type Unavailable struct{}

// Evaluate always fails with ErrUnavailable.
func (Unavailable) Evaluate(context.Context, Payload) (Evaluation, error) {
	return Evaluation{}, ErrUnavailable
}

// Payload is everything the evaluator sees about the athlete.
type Payload struct {
	Date            string                     `json:"date"`
	CurrentWeek     int                        `json:"current_week"`
	TotalWeeks      int                        `json:"total_weeks"`
	IsTestWeek      bool                       `json:"is_test_week"`
	Wellness        wellness.Averages          `json:"wellness_7_day_averages"`
	Activity        wellness.ActivitySummary   `json:"activity_14_days"`
	RecentWorkouts  []WorkoutSummary           `json:"recent_workouts"`
	Upcoming        []WorkoutSummary           `json:"upcoming_workouts"`
	Goals           []GoalSummary              `json:"goals"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
	Adjustment      plan.Adjustment            `json:"rule_based_adjustment"`
	PlanSummary     string                     `json:"plan_summary"`
	UserNotes       string                     `json:"user_notes,omitempty"`
}

// WorkoutSummary is the compact form of a scheduled workout sent to the evaluator.
type WorkoutSummary struct {
	Date        string      `json:"date"`
	Week        int         `json:"week"`
	Day         int         `json:"day"`
	WorkoutType string      `json:"workout_type"`
	Name        string      `json:"name"`
	Status      plan.Status `json:"status"`
}

// GoalSummary is the compact form of a goal analysis sent to the evaluator.
type GoalSummary struct {
	Name            string     `json:"name"`
	MetricType      string     `json:"metric_type"`
	Target          float64    `json:"target"`
	Current         *float64   `json:"current"`
	ProgressPercent float64    `json:"progress_percent"`
	Trend           goal.Trend `json:"trend"`
	OnTrack         *bool      `json:"on_track"`
}

// SummarizeWorkout converts a scheduled workout for the payload.
func SummarizeWorkout(w plan.Workout) WorkoutSummary {
	return WorkoutSummary{
		Date:        w.Date.Format("2006-01-02"),
		Week:        w.WeekNumber,
		Day:         w.DayOfWeek,
		WorkoutType: w.WorkoutType,
		Name:        w.Name,
		Status:      w.Status,
	}
}

// SummarizeGoal converts a goal analysis for the payload.
func SummarizeGoal(p goal.Progress) GoalSummary {
	return GoalSummary{
		Name:            p.Goal.Name,
		MetricType:      p.Goal.MetricType,
		Target:          p.Goal.Target,
		Current:         p.CurrentValue,
		ProgressPercent: p.ProgressPercent,
		Trend:           p.Trend,
		OnTrack:         p.OnTrack,
	}
}
