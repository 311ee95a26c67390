// Package goal tracks athlete goals and the metrics measured against them, and analyses how each goal is progressing.
package goal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("goal not found")
	ErrInvalidGoal   = errors.New("invalid goal")
	ErrInvalidMetric = errors.New("invalid metric")
)

// Direction tells which way a metric must move for the goal to be reached.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionMaintain Direction = "maintain"
)

// Status is the lifecycle state of a goal. Goals are archived, never deleted.
type Status string

const (
	StatusActive    Status = "active"
	StatusAchieved  Status = "achieved"
	StatusAbandoned Status = "abandoned"
	StatusPaused    Status = "paused"
)

// Trend classifies the recent movement of a metric relative to the goal direction.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
	TrendUnknown   Trend = "unknown"
)

// ProgressStatus summarises an analysis result.
type ProgressStatus string

const (
	ProgressNoData        ProgressStatus = "no_data"
	ProgressInProgress    ProgressStatus = "in_progress"
	ProgressTargetReached ProgressStatus = "target_reached"
)

// Goal is a target value for one metric type.
//
// Several active goals may share a metric type.
type Goal struct {
	ID           int        `json:"id"`
	AthleteID    int        `json:"athlete_id"`
	Name         string     `json:"name"`
	MetricType   string     `json:"metric_type"`
	Target       float64    `json:"target_value"`
	Baseline     *float64   `json:"baseline_value,omitempty"`
	BaselineDate *time.Time `json:"baseline_date,omitempty"`
	Direction    Direction  `json:"direction"`
	// MinAcceptable and MaxAcceptable bound the band of a maintain goal. A missing bound is unbounded.
	MinAcceptable *float64   `json:"min_acceptable,omitempty"`
	MaxAcceptable *float64   `json:"max_acceptable,omitempty"`
	TargetDate    *time.Time `json:"target_date,omitempty"`
	Status        Status     `json:"status"`
	Priority      int        `json:"priority"`
}

// Metric is one dated observation. Several observations per day are allowed.
type Metric struct {
	ID         int             `json:"id"`
	AthleteID  int             `json:"athlete_id"`
	Date       time.Time       `json:"date"`
	MetricType string          `json:"metric_type"`
	Value      *float64        `json:"value,omitempty"`
	TextValue  *string         `json:"text_value,omitempty"`
	JSONValue  json.RawMessage `json:"json_value,omitempty"`
	Method     string          `json:"method,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// Progress is the analysis of one goal.
type Progress struct {
	Goal            Goal           `json:"goal"`
	CurrentValue    *float64       `json:"current_value"`
	ProgressPercent float64        `json:"progress_percent"`
	Trend           Trend          `json:"trend"`
	OnTrack         *bool          `json:"on_track"`
	DaysToTarget    *int           `json:"days_to_target"`
	Recommendation  string         `json:"recommendation"`
	Status          ProgressStatus `json:"status"`
	DataPoints      int            `json:"data_points"`
}

// Behind reports whether the goal is declining or explicitly off track. Unknown on-track state does not count.
func (p Progress) Behind() bool {
	return p.Trend == TrendDeclining || (p.OnTrack != nil && !*p.OnTrack)
}

func (g Goal) validate() error {
	switch {
	case g.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidGoal)
	case g.MetricType == "":
		return fmt.Errorf("%w: metric type is required", ErrInvalidGoal)
	}
	switch g.Direction {
	case DirectionIncrease, DirectionDecrease:
	case DirectionMaintain:
		if g.MinAcceptable != nil && g.MaxAcceptable != nil && *g.MinAcceptable > *g.MaxAcceptable {
			return fmt.Errorf("%w: min acceptable exceeds max acceptable", ErrInvalidGoal)
		}
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidGoal, g.Direction)
	}
	return nil
}
