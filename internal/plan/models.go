// Package plan schedules a fixed-length training plan, tracks the lifecycle of each workout, and decides when the
// plan should be eased off.
package plan

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no workout exists for the athlete, date, and workout type.
	ErrNotFound = errors.New("workout not found")
	// ErrNotInitialized is returned when the athlete has no plan.
	ErrNotInitialized = errors.New("plan not initialized")
	// ErrInvalidStartDate is returned when the start date does not fall on the week start day of the plan.
	ErrInvalidStartDate = errors.New("invalid plan start date")
	// ErrInvalidDate is returned for malformed date strings.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidWeek is returned for week numbers outside the plan.
	ErrInvalidWeek = errors.New("invalid week number")
	// ErrInvalidWorkout is returned for malformed workout changes.
	ErrInvalidWorkout = errors.New("invalid workout")
	// ErrSlotTaken is returned when a workout would move onto a date that already has the same workout type.
	ErrSlotTaken = errors.New("workout slot already taken")
)

// Status is the lifecycle state of a scheduled workout.
//
// scheduled moves to completed, skipped, or modified. modified can still become completed or skipped.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusModified  Status = "modified"
)

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Workout is one scheduled session of the plan.
type Workout struct {
	ID                 int               `json:"id"`
	AthleteID          int               `json:"athlete_id"`
	Date               time.Time         `json:"date"`
	WorkoutType        string            `json:"workout_type"`
	Name               string            `json:"name"`
	WeekNumber         int               `json:"week_number"`
	DayOfWeek          int               `json:"day_of_week"`
	IsTestWeek         bool              `json:"is_test_week"`
	DurationMinutes    int               `json:"duration_minutes"`
	Definition         WorkoutDefinition `json:"definition"`
	Status             Status            `json:"status"`
	ModificationReason string            `json:"modification_reason,omitempty"`
	ModifiedBy         string            `json:"modified_by,omitempty"`
	ActualData         json.RawMessage   `json:"actual_data,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	ExternalSyncID     string            `json:"external_sync_id,omitempty"`
	ExternalSyncDate   *time.Time        `json:"external_sync_date,omitempty"`
}

// Metadata records which plan the athlete follows and when it started.
type Metadata struct {
	AthleteID  int       `json:"athlete_id"`
	PlanName   string    `json:"plan_name"`
	StartDate  time.Time `json:"start_date"`
	TotalWeeks int       `json:"total_weeks"`
	TestWeeks  []int     `json:"test_weeks"`
}

// Progress is the adherence rollup of a plan.
type Progress struct {
	Initialized bool           `json:"initialized"`
	CurrentWeek int            `json:"current_week"`
	TotalWeeks  int            `json:"total_weeks"`
	IsTestWeek  bool           `json:"is_test_week"`
	Counts      map[Status]int `json:"counts"`
	Total       int            `json:"total"`
	// AdherenceRate is completed / (completed + skipped) as a percentage, 0 before any attempt.
	AdherenceRate float64 `json:"adherence_rate"`
}

// WeekSummary lists the workouts of one plan week.
type WeekSummary struct {
	Week      int       `json:"week"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Workouts  []Workout `json:"workouts"`
	// CompletionRate is completed / total for the week as a percentage.
	CompletionRate float64 `json:"completion_rate"`
}

// Week is an editable view of one plan week. Changes are persisted with Scheduler.SaveWeek.
type Week struct {
	Number   int       `json:"number"`
	Name     string    `json:"name"`
	Notes    string    `json:"notes,omitempty"`
	Deload   bool      `json:"deload"`
	Workouts []Workout `json:"workouts"`
}
