package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// DefinitionVersion is the current version of the stored workout definition.
const DefinitionVersion = 1

// ErrUnsupportedVersion is returned when a stored workout definition is newer than this build understands.
var ErrUnsupportedVersion = errors.New("unsupported workout definition version")

// Exercise kinds. The kind decides which of the target fields apply.
const (
	KindSets     = "sets"
	KindTimed    = "timed"
	KindDistance = "distance"
)

// Phase is a block of a workout such as warm-up or main set.
type Phase struct {
	Name      string     `json:"name"                toml:"name"      yaml:"name"`
	Exercises []Exercise `json:"exercises,omitempty" toml:"exercises" yaml:"exercises"`
}

// Exercise is one entry of a phase.
type Exercise struct {
	Kind            string  `json:"kind"                       toml:"kind"             yaml:"kind"`
	Name            string  `json:"name"                       toml:"name"             yaml:"name"`
	Sets            int     `json:"sets,omitempty"             toml:"sets"             yaml:"sets"`
	Reps            int     `json:"reps,omitempty"             toml:"reps"             yaml:"reps"`
	DurationSeconds int     `json:"duration_seconds,omitempty" toml:"duration_seconds" yaml:"duration_seconds"`
	DistanceMeters  int     `json:"distance_meters,omitempty"  toml:"distance_meters"  yaml:"distance_meters"`
	Intensity       string  `json:"intensity,omitempty"        toml:"intensity"        yaml:"intensity"`
	LoadPercent     float64 `json:"load_percent,omitempty"     toml:"load_percent"     yaml:"load_percent"`
	RestSeconds     int     `json:"rest_seconds,omitempty"     toml:"rest_seconds"     yaml:"rest_seconds"`
	Notes           string  `json:"notes,omitempty"            toml:"notes"            yaml:"notes"`
}

// WorkoutDefinition is the structured content of a scheduled workout. It is stored as JSON text.
type WorkoutDefinition struct {
	Version           int               `json:"version"`
	Phases            []Phase           `json:"phases"`
	Notes             string            `json:"notes,omitempty"`
	IntensityModifier *float64          `json:"intensity_modifier,omitempty"`
	VolumeModifier    *float64          `json:"volume_modifier,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

// Patch is a partial WorkoutDefinition. Nil fields keep the stored value.
type Patch struct {
	Phases            []Phase           `json:"phases,omitempty"`
	Notes             *string           `json:"notes,omitempty"`
	IntensityModifier *float64          `json:"intensity_modifier,omitempty"`
	VolumeModifier    *float64          `json:"volume_modifier,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Phases == nil && p.Notes == nil && p.IntensityModifier == nil && p.VolumeModifier == nil &&
		len(p.Annotations) == 0
}

// Apply returns d with the patch merged in. Annotations are merged key by key.
func (d WorkoutDefinition) Apply(p Patch) WorkoutDefinition {
	merged := d.clone()
	if p.Phases != nil {
		merged.Phases = clonePhases(p.Phases)
	}
	if p.Notes != nil {
		merged.Notes = *p.Notes
	}
	if p.IntensityModifier != nil {
		v := *p.IntensityModifier
		merged.IntensityModifier = &v
	}
	if p.VolumeModifier != nil {
		v := *p.VolumeModifier
		merged.VolumeModifier = &v
	}
	if len(p.Annotations) > 0 {
		if merged.Annotations == nil {
			merged.Annotations = make(map[string]string, len(p.Annotations))
		}
		maps.Copy(merged.Annotations, p.Annotations)
	}
	return merged
}

func (d WorkoutDefinition) clone() WorkoutDefinition {
	c := d
	c.Phases = clonePhases(d.Phases)
	c.Annotations = maps.Clone(d.Annotations)
	if d.IntensityModifier != nil {
		v := *d.IntensityModifier
		c.IntensityModifier = &v
	}
	if d.VolumeModifier != nil {
		v := *d.VolumeModifier
		c.VolumeModifier = &v
	}
	return c
}

func clonePhases(phases []Phase) []Phase {
	if phases == nil {
		return nil
	}
	c := make([]Phase, len(phases))
	for i, p := range phases {
		c[i] = Phase{Name: p.Name, Exercises: slices.Clone(p.Exercises)}
	}
	return c
}

// definitionFromSlot builds the stored definition of a slot.
func definitionFromSlot(s Slot) WorkoutDefinition {
	phases := clonePhases(s.Phases)
	if phases == nil {
		phases = []Phase{}
	}
	for i := range phases {
		for j := range phases[i].Exercises {
			if phases[i].Exercises[j].Kind == "" {
				phases[i].Exercises[j].Kind = inferKind(phases[i].Exercises[j])
			}
		}
	}
	return WorkoutDefinition{Version: DefinitionVersion, Phases: phases}
}

func inferKind(e Exercise) string {
	switch {
	case e.DistanceMeters > 0:
		return KindDistance
	case e.DurationSeconds > 0 && e.Sets == 0:
		return KindTimed
	default:
		return KindSets
	}
}

// MarshalDefinition encodes the definition for storage.
func MarshalDefinition(d WorkoutDefinition) (string, error) {
	if d.Version == 0 {
		d.Version = DefinitionVersion
	}
	if d.Phases == nil {
		d.Phases = []Phase{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal workout definition: %w", err)
	}
	return string(b), nil
}

// UnmarshalDefinition decodes a stored definition. Definitions written before versioning have no version field and
// no exercise kinds. They are upgraded on read.
func UnmarshalDefinition(s string) (WorkoutDefinition, error) {
	var d WorkoutDefinition
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return WorkoutDefinition{}, fmt.Errorf("unmarshal workout definition: %w", err)
	}
	switch {
	case d.Version > DefinitionVersion:
		return WorkoutDefinition{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, d.Version)
	case d.Version == 0:
		for i := range d.Phases {
			for j := range d.Phases[i].Exercises {
				if d.Phases[i].Exercises[j].Kind == "" {
					d.Phases[i].Exercises[j].Kind = inferKind(d.Phases[i].Exercises[j])
				}
			}
		}
		d.Version = DefinitionVersion
	}
	if d.Phases == nil {
		d.Phases = []Phase{}
	}
	return d, nil
}
