package advisor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Assessment is the overall verdict of an evaluation.
type Assessment string

const (
	AssessmentOnTrack         Assessment = "on_track"
	AssessmentNeedsAdjustment Assessment = "needs_adjustment"
	AssessmentConcerning      Assessment = "concerning"
	AssessmentUnknown         Assessment = "unknown"
)

// ModificationType tells the plan manager how to apply a modification.
type ModificationType string

const (
	ModificationIntensity   ModificationType = "intensity"
	ModificationVolume      ModificationType = "volume"
	ModificationAddRest     ModificationType = "add_rest"
	ModificationSkip        ModificationType = "skip"
	ModificationReschedule  ModificationType = "reschedule"
	ModificationSwapWorkout ModificationType = "swap_workout"
)

// Priority of a proposed modification. Only high priority modifications are auto-applied.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Modification is one proposed change to a scheduled workout. The workout is identified by Date, or by plan Week
// and Day when Date is empty.
type Modification struct {
	Type              ModificationType `json:"type"`
	Week              int              `json:"week,omitempty"`
	Day               int              `json:"day,omitempty"`
	Date              string           `json:"date,omitempty"`
	WorkoutType       string           `json:"workout_type"`
	Description       string           `json:"description"`
	Reason            string           `json:"reason"`
	Priority          Priority         `json:"priority"`
	IntensityModifier *float64         `json:"intensity_modifier,omitempty"`
	VolumeModifier    *float64         `json:"volume_modifier,omitempty"`
	NewDate           string           `json:"new_date,omitempty"`
	NewWorkoutType    string           `json:"new_workout_type,omitempty"`
}

// Evaluation is the structured reply of the evaluator.
type Evaluation struct {
	Assessment      Assessment     `json:"overall_assessment"`
	ProgressSummary string         `json:"progress_summary"`
	Modifications   []Modification `json:"modifications"`
	NextWeekFocus   string         `json:"next_week_focus"`
	Warnings        []string       `json:"warnings"`
	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`
}

// flexNumber accepts JSON numbers, numeric strings, and null.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*n = 0
		return nil
	}
	s = strings.TrimSuffix(strings.Trim(s, `"`), "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("parse number %s: %w", b, err)
	}
	*n = flexNumber(v)
	return nil
}

// whole returns n as an int, failing for fractional values.
func (n flexNumber) whole(field string) (int, error) {
	if v := float64(n); v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s %v is not a whole number", field, v)
	}
	return int(n), nil
}

type rawModification struct {
	Type              string      `json:"type"`
	Week              flexNumber  `json:"week"`
	Day               flexNumber  `json:"day"`
	Date              string      `json:"date"`
	WorkoutType       string      `json:"workout_type"`
	Description       string      `json:"description"`
	Reason            string      `json:"reason"`
	Priority          string      `json:"priority"`
	IntensityModifier *flexNumber `json:"intensity_modifier"`
	VolumeModifier    *flexNumber `json:"volume_modifier"`
	NewDate           string      `json:"new_date"`
	NewWorkoutType    string      `json:"new_workout_type"`
}

type rawEvaluation struct {
	Assessment      string            `json:"overall_assessment"`
	ProgressSummary string            `json:"progress_summary"`
	Modifications   []json.RawMessage `json:"modifications"`
	NextWeekFocus   string            `json:"next_week_focus"`
	Warnings        []string          `json:"warnings"`
	Confidence      flexNumber        `json:"confidence"`
}

// Parse reads an evaluator reply. It tolerates markdown code fences, prose around the JSON object, numbers sent as
// strings, and confidence given in percent. Modifications that cannot be read are dropped with a warning. A reply
// without a JSON object fails with ErrMalformedResponse.
func Parse(reply string) (Evaluation, error) {
	body := extractObject(reply)
	if body == nil {
		return Evaluation{}, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}
	var raw rawEvaluation
	if err := json.Unmarshal(body, &raw); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	e := Evaluation{
		Assessment:      parseAssessment(raw.Assessment),
		ProgressSummary: strings.TrimSpace(raw.ProgressSummary),
		NextWeekFocus:   strings.TrimSpace(raw.NextWeekFocus),
		Warnings:        raw.Warnings,
		Confidence:      normalizeConfidence(float64(raw.Confidence)),
		Modifications:   make([]Modification, 0, len(raw.Modifications)),
	}
	if e.Warnings == nil {
		e.Warnings = []string{}
	}
	for i, item := range raw.Modifications {
		m, err := parseModification(item)
		if err != nil {
			e.Warnings = append(e.Warnings, fmt.Sprintf("ignored modification %d: %v", i, err))
			continue
		}
		e.Modifications = append(e.Modifications, m)
	}
	return e, nil
}

// extractObject returns the outermost {...} of the reply.
func extractObject(reply string) []byte {
	b := []byte(reply)
	start := bytes.IndexByte(b, '{')
	end := bytes.LastIndexByte(b, '}')
	if start < 0 || end < start {
		return nil
	}
	return b[start : end+1]
}

func parseAssessment(s string) Assessment {
	switch a := Assessment(strings.ToLower(strings.TrimSpace(s))); a {
	case AssessmentOnTrack, AssessmentNeedsAdjustment, AssessmentConcerning:
		return a
	default:
		return AssessmentUnknown
	}
}

func normalizeConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		c /= 100
	}
	return min(c, 1)
}

func parseModification(item json.RawMessage) (Modification, error) {
	var raw rawModification
	if err := json.Unmarshal(item, &raw); err != nil {
		return Modification{}, fmt.Errorf("decode: %w", err)
	}
	week, err := raw.Week.whole("week")
	if err != nil {
		return Modification{}, err
	}
	day, err := raw.Day.whole("day")
	if err != nil {
		return Modification{}, err
	}
	m := Modification{
		Type:           ModificationType(strings.ToLower(strings.TrimSpace(raw.Type))),
		Week:           week,
		Day:            day,
		Date:           strings.TrimSpace(raw.Date),
		WorkoutType:    strings.TrimSpace(raw.WorkoutType),
		Description:    raw.Description,
		Reason:         raw.Reason,
		Priority:       Priority(strings.ToLower(strings.TrimSpace(raw.Priority))),
		NewDate:        strings.TrimSpace(raw.NewDate),
		NewWorkoutType: strings.TrimSpace(raw.NewWorkoutType),
	}
	if raw.IntensityModifier != nil {
		v := float64(*raw.IntensityModifier)
		m.IntensityModifier = &v
	}
	if raw.VolumeModifier != nil {
		v := float64(*raw.VolumeModifier)
		m.VolumeModifier = &v
	}
	switch m.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		m.Priority = PriorityMedium
	}
	switch m.Type {
	case ModificationIntensity, ModificationVolume, ModificationAddRest, ModificationSkip:
	case ModificationReschedule:
		if m.NewDate == "" {
			return Modification{}, fmt.Errorf("reschedule without new_date")
		}
	case ModificationSwapWorkout:
		if m.NewWorkoutType == "" {
			return Modification{}, fmt.Errorf("swap_workout without new_workout_type")
		}
	default:
		return Modification{}, fmt.Errorf("unknown type %q", raw.Type)
	}
	if m.WorkoutType == "" {
		return Modification{}, fmt.Errorf("missing workout_type")
	}
	if m.Date == "" && (m.Week < 1 || m.Day < 1 || m.Day > 7) {
		return Modification{}, fmt.Errorf("missing date or week and day")
	}
	return m, nil
}
