package plan

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition is returned for plan definitions that fail validation.
var ErrInvalidDefinition = errors.New("invalid plan definition")

//go:embed default_plan.toml
var defaultPlan []byte

// Definition is the weekly structure of a fixed-length plan.
type Definition struct {
	Name       string `toml:"name"        yaml:"name"`
	TotalWeeks int    `toml:"total_weeks" yaml:"total_weeks"`
	// WeekStart is the weekday plans must start on, e.g. "monday".
	WeekStart string `toml:"week_start" yaml:"week_start"`
	TestWeeks []int  `toml:"test_weeks" yaml:"test_weeks"`
	// TestSubstitution replaces one weekly slot with a time trial on test weeks.
	TestSubstitution *Substitution `toml:"test_substitution" yaml:"test_substitution"`
	Slots            []Slot        `toml:"slots"             yaml:"slots"`
}

// Substitution swaps the slot with workout type Replaces for Slot on the same day.
type Substitution struct {
	Replaces string `toml:"replaces" yaml:"replaces"`
	Slot     Slot   `toml:"slot"     yaml:"slot"`
}

// Slot is a workout on a day of the plan week. Day 1 is the week start day.
type Slot struct {
	Day             int     `toml:"day"              yaml:"day"`
	WorkoutType     string  `toml:"workout_type"     yaml:"workout_type"`
	Name            string  `toml:"name"             yaml:"name"`
	DurationMinutes int     `toml:"duration_minutes" yaml:"duration_minutes"`
	Phases          []Phase `toml:"phases"           yaml:"phases"`
}

// LoadDefinition reads a TOML or YAML plan definition chosen by file extension.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read plan definition: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return ParseTOML(bytes.NewReader(data))
	case ".yaml", ".yml":
		return ParseYAML(bytes.NewReader(data))
	default:
		return Definition{}, fmt.Errorf("%w: unsupported file extension %q", ErrInvalidDefinition, ext)
	}
}

// DefaultDefinition returns the embedded 24 week plan.
func DefaultDefinition() Definition {
	def, err := ParseTOML(bytes.NewReader(defaultPlan))
	if err != nil {
		panic(fmt.Sprintf("embedded plan definition: %v", err))
	}
	return def
}

// ParseTOML decodes and validates a TOML plan definition. Unknown keys are rejected.
func ParseTOML(r io.Reader) (Definition, error) {
	var def Definition
	meta, err := toml.NewDecoder(r).Decode(&def)
	if err != nil {
		return Definition{}, fmt.Errorf("%w: decode toml: %w", ErrInvalidDefinition, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Definition{}, fmt.Errorf("%w: unknown key %q", ErrInvalidDefinition, undecoded[0].String())
	}
	if err = def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ParseYAML decodes and validates a YAML plan definition. Unknown keys are rejected.
func ParseYAML(r io.Reader) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("%w: decode yaml: %w", ErrInvalidDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Weekday parses WeekStart.
func (d Definition) Weekday() (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(d.WeekStart, wd.String()) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown week start %q", ErrInvalidDefinition, d.WeekStart)
}

// IsTestWeek reports whether week is a designated test week.
func (d Definition) IsTestWeek(week int) bool {
	return slices.Contains(d.TestWeeks, week)
}

// Validate checks the structural rules of the definition.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if d.TotalWeeks < 1 {
		return fmt.Errorf("%w: total weeks must be at least 1", ErrInvalidDefinition)
	}
	if _, err := d.Weekday(); err != nil {
		return err
	}
	if len(d.Slots) == 0 {
		return fmt.Errorf("%w: at least one slot is required", ErrInvalidDefinition)
	}
	type key struct {
		day         int
		workoutType string
	}
	seen := make(map[key]bool, len(d.Slots))
	for _, s := range d.Slots {
		if err := s.validate(); err != nil {
			return err
		}
		k := key{s.Day, s.WorkoutType}
		if seen[k] {
			return fmt.Errorf("%w: duplicate slot %s on day %d", ErrInvalidDefinition, s.WorkoutType, s.Day)
		}
		seen[k] = true
	}
	for _, w := range d.TestWeeks {
		if w < 1 || w > d.TotalWeeks {
			return fmt.Errorf("%w: test week %d outside 1..%d", ErrInvalidDefinition, w, d.TotalWeeks)
		}
	}
	if sub := d.TestSubstitution; sub != nil {
		i := slices.IndexFunc(d.Slots, func(s Slot) bool { return s.WorkoutType == sub.Replaces })
		if i < 0 {
			return fmt.Errorf("%w: substitution replaces unknown slot %q", ErrInvalidDefinition, sub.Replaces)
		}
		slot := sub.Slot
		slot.Day = d.Slots[i].Day
		if err := slot.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Slot) validate() error {
	switch {
	case s.Day < 1 || s.Day > 7:
		return fmt.Errorf("%w: slot %s day %d outside 1..7", ErrInvalidDefinition, s.WorkoutType, s.Day)
	case s.WorkoutType == "":
		return fmt.Errorf("%w: slot on day %d has no workout type", ErrInvalidDefinition, s.Day)
	case s.DurationMinutes < 0:
		return fmt.Errorf("%w: slot %s has negative duration", ErrInvalidDefinition, s.WorkoutType)
	}
	for _, p := range s.Phases {
		for _, e := range p.Exercises {
			if e.Name == "" || e.Sets < 0 {
				return fmt.Errorf("%w: slot %s has an invalid exercise", ErrInvalidDefinition, s.WorkoutType)
			}
		}
	}
	return nil
}

// slotsFor returns the slots of a week, with the test substitution applied on test weeks.
func (d Definition) slotsFor(week int) []Slot {
	slots := slices.Clone(d.Slots)
	if d.TestSubstitution == nil || !d.IsTestWeek(week) {
		return slots
	}
	for i, s := range slots {
		if s.WorkoutType == d.TestSubstitution.Replaces {
			sub := d.TestSubstitution.Slot
			sub.Day = s.Day
			slots[i] = sub
		}
	}
	return slots
}

// slotNamed returns the slot with the workout type, if any.
func (d Definition) slotNamed(workoutType string) (Slot, bool) {
	for _, s := range d.Slots {
		if s.WorkoutType == workoutType {
			return s, true
		}
	}
	if d.TestSubstitution != nil && d.TestSubstitution.Slot.WorkoutType == workoutType {
		return d.TestSubstitution.Slot, true
	}
	return Slot{}, false
}
