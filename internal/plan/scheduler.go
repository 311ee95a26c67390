package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/myrjola/fitcoach/internal/sqlite"
)

const daysPerWeek = 7

// Scheduler materialises the plan calendar for an athlete and tracks the lifecycle of each workout.
type Scheduler struct {
	repo   *sqliteRepository
	def    Definition
	logger *slog.Logger
}

// NewScheduler creates a scheduler for the plan definition.
func NewScheduler(db *sqlite.Database, def Definition, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		repo:   newSQLiteRepository(db, logger),
		def:    def,
		logger: logger,
	}
}

// Definition returns the plan the scheduler generates.
func (s *Scheduler) Definition() Definition {
	return s.def
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CurrentWeek returns clamp(floor(days elapsed / 7) + 1, 1, totalWeeks).
func CurrentWeek(start, now time.Time, totalWeeks int) int {
	days := int(dateOnly(now).Sub(dateOnly(start)).Hours() / 24) //nolint:mnd // hours per day.
	week := int(math.Floor(float64(days)/daysPerWeek)) + 1
	return max(1, min(week, totalWeeks))
}

// Generate builds the calendar of the whole plan starting on start. Nothing is persisted.
func (s *Scheduler) Generate(athleteID int, start time.Time) []Workout {
	start = dateOnly(start)
	workouts := make([]Workout, 0, s.def.TotalWeeks*len(s.def.Slots))
	for week := 1; week <= s.def.TotalWeeks; week++ {
		testWeek := s.def.IsTestWeek(week)
		for _, slot := range s.def.slotsFor(week) {
			workouts = append(workouts, Workout{
				AthleteID:       athleteID,
				Date:            start.AddDate(0, 0, (week-1)*daysPerWeek+slot.Day-1),
				WorkoutType:     slot.WorkoutType,
				Name:            displayName(slot),
				WeekNumber:      week,
				DayOfWeek:       slot.Day,
				IsTestWeek:      testWeek,
				DurationMinutes: slot.DurationMinutes,
				Definition:      definitionFromSlot(slot),
				Status:          StatusScheduled,
			})
		}
	}
	return workouts
}

// Initialize persists the plan calendar starting on start. Running it again with the same start date changes no
// row count.
func (s *Scheduler) Initialize(ctx context.Context, athleteID int, start time.Time) (Metadata, int, error) {
	weekStart, err := s.def.Weekday()
	if err != nil {
		return Metadata{}, 0, err
	}
	if start.Weekday() != weekStart {
		return Metadata{}, 0, fmt.Errorf("%w: %s is a %s, the plan starts on %s", ErrInvalidStartDate,
			start.Format(dateFormat), start.Weekday(), weekStart)
	}
	md := Metadata{
		AthleteID:  athleteID,
		PlanName:   s.def.Name,
		StartDate:  dateOnly(start),
		TotalWeeks: s.def.TotalWeeks,
		TestWeeks:  s.def.TestWeeks,
	}
	if md.TestWeeks == nil {
		md.TestWeeks = []int{}
	}
	workouts := s.Generate(athleteID, start)
	if err = s.repo.initialize(ctx, md, workouts); err != nil {
		return Metadata{}, 0, fmt.Errorf("initialize plan: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "initialized plan",
		slog.Int("athlete_id", athleteID),
		slog.String("plan", md.PlanName),
		slog.String("start_date", md.StartDate.Format(dateFormat)),
		slog.Int("workouts", len(workouts)))
	return md, len(workouts), nil
}

// Metadata returns the plan metadata of the athlete or ErrNotInitialized.
func (s *Scheduler) Metadata(ctx context.Context, athleteID int) (Metadata, error) {
	md, err := s.repo.getMetadata(ctx, athleteID)
	if err != nil {
		return Metadata{}, fmt.Errorf("get plan metadata: %w", err)
	}
	return md, nil
}

// Get returns the workout of the given type on date.
func (s *Scheduler) Get(ctx context.Context, athleteID int, date time.Time, workoutType string) (Workout, error) {
	w, err := s.repo.getWorkout(ctx, athleteID, date, workoutType)
	if err != nil {
		return Workout{}, fmt.Errorf("get workout: %w", err)
	}
	return w, nil
}

// ListRange returns the workouts dated within [from, to].
func (s *Scheduler) ListRange(ctx context.Context, athleteID int, from, to time.Time) ([]Workout, error) {
	workouts, err := s.repo.listWorkouts(ctx, athleteID, "scheduled_date BETWEEN ? AND ?",
		from.Format(dateFormat), to.Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	return workouts, nil
}

func (s *Scheduler) update(
	ctx context.Context, athleteID int, date time.Time, workoutType string, updateFn func(w *Workout) (bool, error),
) (Workout, error) {
	w, err := s.repo.updateWorkout(ctx, updateFn, "athlete_id = ? AND scheduled_date = ? AND workout_type = ?",
		athleteID, date.Format(dateFormat), workoutType)
	if err != nil {
		return Workout{}, fmt.Errorf("update workout %s on %s: %w", workoutType, date.Format(dateFormat), err)
	}
	return w, nil
}

// MarkCompleted marks the workout completed. Modified workouts can be completed too.
func (s *Scheduler) MarkCompleted(
	ctx context.Context, athleteID int, date time.Time, workoutType string, actual json.RawMessage, now time.Time,
) (Workout, error) {
	if len(actual) > 0 && !json.Valid(actual) {
		return Workout{}, fmt.Errorf("%w: actual data is not valid JSON", ErrInvalidWorkout)
	}
	w, err := s.update(ctx, athleteID, date, workoutType, func(w *Workout) (bool, error) {
		completedAt := now.UTC()
		w.Status = StatusCompleted
		w.CompletedAt = &completedAt
		if len(actual) > 0 {
			w.ActualData = actual
		}
		return true, nil
	})
	if err != nil {
		return Workout{}, err
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "completed workout",
		slog.Int("athlete_id", athleteID), slog.Int("workout_id", w.ID), slog.String("workout_type", workoutType))
	return w, nil
}

// MarkSkipped marks the workout skipped.
func (s *Scheduler) MarkSkipped(
	ctx context.Context, athleteID int, date time.Time, workoutType, reason, by string,
) (Workout, error) {
	return s.update(ctx, athleteID, date, workoutType, func(w *Workout) (bool, error) {
		w.Status = StatusSkipped
		w.ModificationReason = reason
		w.ModifiedBy = by
		return true, nil
	})
}

// ModifyWorkout merges the patch into the stored definition. Fields the patch leaves nil are kept. Scheduled
// workouts become modified. Completed and skipped workouts keep their status.
func (s *Scheduler) ModifyWorkout(
	ctx context.Context, athleteID int, date time.Time, workoutType string, patch Patch, reason, by string,
) (Workout, error) {
	return s.update(ctx, athleteID, date, workoutType, func(w *Workout) (bool, error) {
		w.Definition = w.Definition.Apply(patch)
		markModified(w, reason, by)
		return true, nil
	})
}

// Reschedule moves the workout to newDate. The week and day follow the plan calendar when metadata exists.
func (s *Scheduler) Reschedule(
	ctx context.Context, athleteID int, date time.Time, workoutType string, newDate time.Time, reason, by string,
) (Workout, error) {
	md, err := s.repo.getMetadata(ctx, athleteID)
	if err != nil && !errors.Is(err, ErrNotInitialized) {
		return Workout{}, fmt.Errorf("get plan metadata: %w", err)
	}
	return s.update(ctx, athleteID, date, workoutType, func(w *Workout) (bool, error) {
		w.Date = dateOnly(newDate)
		if md.TotalWeeks > 0 {
			days := int(w.Date.Sub(md.StartDate).Hours() / 24) //nolint:mnd // hours per day.
			if days >= 0 {
				w.WeekNumber = days/daysPerWeek + 1
				w.DayOfWeek = days%daysPerWeek + 1
			}
		}
		markModified(w, reason, by)
		return true, nil
	})
}

// SwapWorkout replaces the workout type and regenerates the display name. When the new type is a slot of the plan,
// its content replaces the stored definition.
func (s *Scheduler) SwapWorkout(
	ctx context.Context, athleteID int, date time.Time, workoutType, newType, reason, by string,
) (Workout, error) {
	if newType == "" {
		return Workout{}, fmt.Errorf("%w: empty workout type", ErrInvalidWorkout)
	}
	return s.update(ctx, athleteID, date, workoutType, func(w *Workout) (bool, error) {
		w.WorkoutType = newType
		if slot, ok := s.def.slotNamed(newType); ok {
			w.Name = displayName(slot)
			w.DurationMinutes = slot.DurationMinutes
			w.Definition = definitionFromSlot(slot)
		} else {
			w.Name = humanize(newType)
		}
		markModified(w, reason, by)
		return true, nil
	})
}

// SetExternalSync records the calendar event of a workout. An empty id clears it.
func (s *Scheduler) SetExternalSync(ctx context.Context, athleteID, workoutID int, syncID string, at time.Time) error {
	_, err := s.repo.updateWorkout(ctx, func(w *Workout) (bool, error) {
		w.ExternalSyncID = syncID
		if syncID == "" {
			w.ExternalSyncDate = nil
			return true, nil
		}
		syncedAt := at.UTC()
		w.ExternalSyncDate = &syncedAt
		return true, nil
	}, "athlete_id = ? AND id = ?", athleteID, workoutID)
	if err != nil {
		return fmt.Errorf("set external sync of workout %d: %w", workoutID, err)
	}
	return nil
}

func markModified(w *Workout, reason, by string) {
	if !w.Status.Terminal() {
		w.Status = StatusModified
	}
	w.ModificationReason = reason
	w.ModifiedBy = by
}

func displayName(s Slot) string {
	if s.Name != "" {
		return s.Name
	}
	return humanize(s.WorkoutType)
}

// humanize turns swim_400m_time_trial into "Swim 400m time trial".
func humanize(workoutType string) string {
	name := strings.ReplaceAll(workoutType, "_", " ")
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10 //nolint:mnd // one decimal percentage.
}

// Progress returns the adherence rollup. An athlete without a plan gets Initialized false and zero counts.
func (s *Scheduler) Progress(ctx context.Context, athleteID int, now time.Time) (Progress, error) {
	md, err := s.repo.getMetadata(ctx, athleteID)
	if errors.Is(err, ErrNotInitialized) {
		return Progress{Counts: map[Status]int{
			StatusScheduled: 0, StatusCompleted: 0, StatusSkipped: 0, StatusModified: 0,
		}}, nil
	}
	if err != nil {
		return Progress{}, fmt.Errorf("get plan metadata: %w", err)
	}
	counts, err := s.repo.statusCounts(ctx, athleteID)
	if err != nil {
		return Progress{}, fmt.Errorf("count workouts: %w", err)
	}
	p := Progress{
		Initialized: true,
		CurrentWeek: CurrentWeek(md.StartDate, now, md.TotalWeeks),
		TotalWeeks:  md.TotalWeeks,
		Counts:      counts,
	}
	for _, n := range counts {
		p.Total += n
	}
	for _, w := range md.TestWeeks {
		if w == p.CurrentWeek {
			p.IsTestWeek = true
		}
	}
	completed, skipped := counts[StatusCompleted], counts[StatusSkipped]
	p.AdherenceRate = percent(completed, completed+skipped)
	return p, nil
}

// WeeklySummary lists the workouts of a plan week. The week bounds come from the plan start date, or from the
// scheduled dates when the metadata is missing.
func (s *Scheduler) WeeklySummary(ctx context.Context, athleteID, week int) (WeekSummary, error) {
	if week < 1 {
		return WeekSummary{}, fmt.Errorf("%w: %d", ErrInvalidWeek, week)
	}
	md, err := s.repo.getMetadata(ctx, athleteID)
	if err != nil && !errors.Is(err, ErrNotInitialized) {
		return WeekSummary{}, fmt.Errorf("get plan metadata: %w", err)
	}
	if md.TotalWeeks > 0 && week > md.TotalWeeks {
		return WeekSummary{}, fmt.Errorf("%w: %d outside 1..%d", ErrInvalidWeek, week, md.TotalWeeks)
	}
	workouts, err := s.repo.listWorkouts(ctx, athleteID, "week_number = ?", week)
	if err != nil {
		return WeekSummary{}, fmt.Errorf("list week workouts: %w", err)
	}

	summary := WeekSummary{Week: week, Workouts: workouts}
	if summary.Workouts == nil {
		summary.Workouts = []Workout{}
	}
	switch {
	case md.TotalWeeks > 0:
		summary.StartDate = md.StartDate.AddDate(0, 0, (week-1)*daysPerWeek)
		summary.EndDate = summary.StartDate.AddDate(0, 0, daysPerWeek-1)
	case len(workouts) > 0:
		summary.StartDate, summary.EndDate = workouts[0].Date, workouts[0].Date
		for _, w := range workouts[1:] {
			if w.Date.Before(summary.StartDate) {
				summary.StartDate = w.Date
			}
			if w.Date.After(summary.EndDate) {
				summary.EndDate = w.Date
			}
		}
	}
	completed := 0
	for _, w := range workouts {
		if w.Status == StatusCompleted {
			completed++
		}
	}
	summary.CompletionRate = percent(completed, len(workouts))
	return summary, nil
}
