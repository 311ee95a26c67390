package plan

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

const (
	deloadSetFactor  = 0.6
	deloadAnnotation = "deload"
	deloadNotes      = "Deload week: sets reduced to 60%."
	modifiedByDeload = "adjuster"
)

// ApplyDeload scales every exercise's set count by 0.6, rounding down to at least one set, and tags the week as a
// deload. It only changes the in-memory week. A week that is already a deload is left alone.
func (w *Week) ApplyDeload() {
	if w.Deload {
		return
	}
	w.Deload = true
	w.Name = weekName(w.Number, true)
	w.Notes = deloadNotes
	factor := deloadSetFactor
	for i := range w.Workouts {
		d := w.Workouts[i].Definition.clone()
		for p := range d.Phases {
			for e := range d.Phases[p].Exercises {
				sets := d.Phases[p].Exercises[e].Sets
				if sets > 0 {
					d.Phases[p].Exercises[e].Sets = max(1, int(math.Floor(float64(sets)*deloadSetFactor)))
				}
			}
		}
		d.VolumeModifier = &factor
		if d.Annotations == nil {
			d.Annotations = make(map[string]string)
		}
		d.Annotations[deloadAnnotation] = "true"
		d.Notes = deloadNotes
		w.Workouts[i].Definition = d
	}
}

func weekName(number int, deload bool) string {
	name := fmt.Sprintf("Week %d", number)
	if deload {
		name += " (deload)"
	}
	return name
}

// Week loads an editable view of a plan week.
func (s *Scheduler) Week(ctx context.Context, athleteID, number int) (Week, error) {
	summary, err := s.WeeklySummary(ctx, athleteID, number)
	if err != nil {
		return Week{}, err
	}
	w := Week{Number: number, Workouts: summary.Workouts}
	w.Deload = len(w.Workouts) > 0
	for _, workout := range w.Workouts {
		if workout.Definition.Annotations[deloadAnnotation] != "true" {
			w.Deload = false
			break
		}
	}
	w.Name = weekName(number, w.Deload)
	if w.Deload {
		w.Notes = deloadNotes
	}
	return w, nil
}

// SaveWeek persists the definitions of the week's workouts. Workouts still scheduled become modified.
func (s *Scheduler) SaveWeek(ctx context.Context, athleteID int, w Week, reason string) error {
	if reason == "" {
		reason = w.Notes
	}
	if err := s.repo.saveDefinitions(ctx, athleteID, w.Workouts, reason, modifiedByDeload); err != nil {
		return fmt.Errorf("save week %d: %w", w.Number, err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "saved plan week",
		slog.Int("athlete_id", athleteID), slog.Int("week", w.Number), slog.Bool("deload", w.Deload))
	return nil
}
