package plan_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/fitcoach/internal/plan"
	"github.com/myrjola/fitcoach/internal/ptr"
	"github.com/myrjola/fitcoach/internal/sqlite"
	"github.com/myrjola/fitcoach/internal/testhelpers"
)

const athleteID = 1

//nolint:gochecknoglobals // fixed test dates.
var (
	monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	now    = monday.AddDate(0, 0, 9).Add(18 * time.Hour)
)

func newScheduler(t *testing.T) *plan.Scheduler {
	t.Helper()
	ctx := t.Context()
	logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
	db, err := sqlite.NewDatabase(ctx, ":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err = db.ReadWrite.ExecContext(ctx, "INSERT INTO athletes (id, name) VALUES (?, 'Ada')", athleteID); err != nil {
		t.Fatalf("Failed to insert athlete: %v", err)
	}
	return plan.NewScheduler(db, plan.DefaultDefinition(), logger)
}

func initialize(t *testing.T, s *plan.Scheduler) {
	t.Helper()
	if _, _, err := s.Initialize(t.Context(), athleteID, monday); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
}

func TestCurrentWeek(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before start", monday.AddDate(0, 0, -3), 1},
		{"first day", monday, 1},
		{"last day of week one", monday.AddDate(0, 0, 6).Add(23 * time.Hour), 1},
		{"week two", monday.AddDate(0, 0, 7), 2},
		{"past the end", monday.AddDate(0, 0, 7*30), 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := plan.CurrentWeek(monday, tt.now, 24); got != tt.want {
				t.Errorf("CurrentWeek() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScheduler_InitializeIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := newScheduler(t)
	end := monday.AddDate(0, 0, 24*7)

	md, count, err := s.Initialize(ctx, athleteID, monday)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if count != 24*6 || md.TotalWeeks != 24 || !md.StartDate.Equal(monday) {
		t.Errorf("Initialize() = %+v, %d, want 144 workouts from %s", md, count, monday)
	}
	first, err := s.ListRange(ctx, athleteID, monday, end)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}

	if _, _, err = s.Initialize(ctx, athleteID, monday); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	second, err := s.ListRange(ctx, athleteID, monday, end)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	if len(first) != 144 || len(second) != len(first) {
		t.Errorf("row counts = %d then %d, want 144 both times", len(first), len(second))
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second Initialize() changed rows (-first +second):\n%s", diff)
	}
}

func TestScheduler_InitializeKeepsMovedWorkouts(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := newScheduler(t)
	initialize(t, s)
	saturday, sunday := monday.AddDate(0, 0, 5), monday.AddDate(0, 0, 6)
	weekEnd := monday.AddDate(0, 0, 6)

	if _, err := s.Reschedule(ctx, athleteID, saturday, "long_run", sunday, "travel", "athlete"); err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}
	if _, err := s.SwapWorkout(ctx, athleteID, monday, "strength_a", "hill_repeats", "", "athlete"); err != nil {
		t.Fatalf("SwapWorkout() error = %v", err)
	}
	before, err := s.ListRange(ctx, athleteID, monday, weekEnd)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}

	if _, _, err = s.Initialize(ctx, athleteID, monday); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	after, err := s.ListRange(ctx, athleteID, monday, weekEnd)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("second Initialize() changed week 1 (-before +after):\n%s", diff)
	}
	longRuns := 0
	for _, w := range after {
		if w.WorkoutType == "long_run" {
			longRuns++
		}
	}
	if longRuns != 1 {
		t.Errorf("week 1 has %d long runs, want 1", longRuns)
	}
	all, err := s.ListRange(ctx, athleteID, monday, monday.AddDate(0, 0, 24*7))
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	if len(all) != 144 {
		t.Errorf("got %d workouts, want 144", len(all))
	}
}

func TestScheduler_InitializeRejectsWrongWeekday(t *testing.T) {
	t.Parallel()
	s := newScheduler(t)
	if _, _, err := s.Initialize(t.Context(), athleteID, monday.AddDate(0, 0, 1)); !errors.Is(
		err, plan.ErrInvalidStartDate) {
		t.Errorf("Initialize() error = %v, want %v", err, plan.ErrInvalidStartDate)
	}
	if _, err := s.Metadata(t.Context(), athleteID); !errors.Is(err, plan.ErrNotInitialized) {
		t.Errorf("Metadata() error = %v, want %v", err, plan.ErrNotInitialized)
	}
}

func TestScheduler_testWeekSubstitution(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := newScheduler(t)
	initialize(t, s)
	tuesday := monday.AddDate(0, 0, 1)

	trial, err := s.Get(ctx, athleteID, tuesday, "swim_400m_time_trial")
	if err != nil {
		t.Fatalf("Get() week 1 time trial error = %v", err)
	}
	if !trial.IsTestWeek || trial.Name != "400m swim time trial" {
		t.Errorf("Get() = %+v, want the test week time trial", trial)
	}
	if _, err = s.Get(ctx, athleteID, tuesday, "swim_intervals"); !errors.Is(err, plan.ErrNotFound) {
		t.Errorf("Get() week 1 intervals error = %v, want %v", err, plan.ErrNotFound)
	}
	intervals, err := s.Get(ctx, athleteID, tuesday.AddDate(0, 0, 7), "swim_intervals")
	if err != nil || intervals.IsTestWeek {
		t.Errorf("Get() week 2 intervals = %+v, %v, want a normal week", intervals, err)
	}
	if _, err = s.Get(ctx, athleteID, tuesday.AddDate(0, 0, 11*7), "swim_400m_time_trial"); err != nil {
		t.Errorf("Get() week 12 time trial error = %v", err)
	}
}

func TestScheduler_lifecycle(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := newScheduler(t)
	initialize(t, s)
	wednesday := monday.AddDate(0, 0, 2)

	// Modified workouts can still be completed.
	modified, err := s.ModifyWorkout(ctx, athleteID, wednesday, "easy_run",
		plan.Patch{IntensityModifier: ptr.Ref(0.8)}, "tired", "athlete")
	if err != nil {
		t.Fatalf("ModifyWorkout() error = %v", err)
	}
	if modified.Status != plan.StatusModified || len(modified.Definition.Phases) != 1 ||
		*modified.Definition.IntensityModifier != 0.8 {
		t.Errorf("ModifyWorkout() = %+v, want modified with phases kept", modified)
	}
	completed, err := s.MarkCompleted(ctx, athleteID, wednesday, "easy_run", json.RawMessage(`{"km":8}`), now)
	if err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if completed.Status != plan.StatusCompleted || completed.CompletedAt == nil || string(completed.ActualData) !=
		`{"km":8}` {
		t.Errorf("MarkCompleted() = %+v, want completed with actual data", completed)
	}

	skipped, err := s.MarkSkipped(ctx, athleteID, monday, "strength_a", "travel", "athlete")
	if err != nil || skipped.Status != plan.StatusSkipped || skipped.ModificationReason != "travel" {
		t.Errorf("MarkSkipped() = %+v, %v, want skipped", skipped, err)
	}

	// Modifying a finished workout keeps its status.
	if modified, err = s.ModifyWorkout(ctx, athleteID, monday, "strength_a",
		plan.Patch{Notes: ptr.Ref("hotel gym")}, "travel", "athlete"); err != nil || modified.Status != plan.StatusSkipped {
		t.Errorf("ModifyWorkout() on skipped = %+v, %v, want still skipped", modified, err)
	}

	missing := monday.AddDate(0, 0, 6)
	if _, err = s.MarkCompleted(ctx, athleteID, missing, "easy_run", nil, now); !errors.Is(err, plan.ErrNotFound) {
		t.Errorf("MarkCompleted() missing error = %v, want %v", err, plan.ErrNotFound)
	}
	if _, err = s.MarkSkipped(ctx, athleteID, missing, "easy_run", "", ""); !errors.Is(err, plan.ErrNotFound) {
		t.Errorf("MarkSkipped() missing error = %v, want %v", err, plan.ErrNotFound)
	}
	if _, err = s.ModifyWorkout(ctx, athleteID, missing, "easy_run", plan.Patch{}, "", ""); !errors.Is(
		err, plan.ErrNotFound) {
		t.Errorf("ModifyWorkout() missing error = %v, want %v", err, plan.ErrNotFound)
	}
}

func TestScheduler_Progress(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := newScheduler(t)

	p, err := s.Progress(ctx, athleteID, now)
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if p.Initialized || p.AdherenceRate != 0 {
		t.Errorf("Progress() before initialize = %+v, want uninitialized", p)
	}

	initialize(t, s)
	if p, err = s.Progress(ctx, athleteID, now); err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if p.AdherenceRate != 0 || p.CurrentWeek != 2 || p.IsTestWeek {
		t.Errorf("Progress() without attempts = %+v, want adherence 0 in week 2", p)
	}

	week1 := []struct {
		offset      int
		workoutType string
	}{{0, "strength_a"}, {1, "swim_400m_time_trial"}, {2, "easy_run"}, {3, "strength_b"}}
	for i, w := range week1 {
		date := monday.AddDate(0, 0, w.offset)
		if i == 3 {
			_, err = s.MarkSkipped(ctx, athleteID, date, w.workoutType, "sick", "athlete")
		} else {
			_, err = s.MarkCompleted(ctx, athleteID, date, w.workoutType, nil, now)
		}
		if err != nil {
			t.Fatalf("mark %s: %v", w.workoutType, err)
		}
	}

	if p, err = s.Progress(ctx, athleteID, now); err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if p.AdherenceRate != 75 {
		t.Errorf("AdherenceRate = %v, want 75", p.AdherenceRate)
	}
	wantCounts := map[plan.Status]int{
		plan.StatusScheduled: 140, plan.StatusCompleted: 3, plan.StatusSkipped: 1, plan.StatusModified: 0,
	}
	if diff := cmp.Diff(wantCounts, p.Counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}

	summary, err := s.WeeklySummary(ctx, athleteID, 1)
	if err != nil {
		t.Fatalf("WeeklySummary() error = %v", err)
	}
	if len(summary.Workouts) != 6 || summary.CompletionRate != 50 || !summary.StartDate.Equal(monday) ||
		!summary.EndDate.Equal(monday.AddDate(0, 0, 6)) {
		t.Errorf("WeeklySummary() = %+v, want 6 workouts, 50%% complete, Monday to Sunday", summary)
	}
	if _, err = s.WeeklySummary(ctx, athleteID, 25); !errors.Is(err, plan.ErrInvalidWeek) {
		t.Errorf("WeeklySummary(25) error = %v, want %v", err, plan.ErrInvalidWeek)
	}
}

func TestScheduler_RescheduleAndSwap(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := newScheduler(t)
	initialize(t, s)
	thursday := monday.AddDate(0, 0, 3)

	moved, err := s.Reschedule(ctx, athleteID, thursday, "strength_b", monday.AddDate(0, 0, 6), "busy", "plan_manager")
	if err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}
	if moved.DayOfWeek != 7 || moved.WeekNumber != 1 || moved.Status != plan.StatusModified {
		t.Errorf("Reschedule() = %+v, want Sunday of week 1, modified", moved)
	}
	// Saturday already has a long run.
	if _, err = s.Reschedule(ctx, athleteID, monday.AddDate(0, 0, 12), "long_run", monday.AddDate(0, 0, 5),
		"", ""); !errors.Is(err, plan.ErrSlotTaken) {
		t.Errorf("Reschedule() onto taken slot error = %v, want %v", err, plan.ErrSlotTaken)
	}

	swapped, err := s.SwapWorkout(ctx, athleteID, monday.AddDate(0, 0, 7), "strength_a", "long_run", "swap", "athlete")
	if err != nil {
		t.Fatalf("SwapWorkout() error = %v", err)
	}
	if swapped.WorkoutType != "long_run" || swapped.Name != "Long run" {
		t.Errorf("SwapWorkout() = %+v, want the long run", swapped)
	}
	custom, err := s.SwapWorkout(ctx, athleteID, monday.AddDate(0, 0, 9), "easy_run", "hill_repeats", "", "athlete")
	if err != nil || custom.Name != "Hill repeats" {
		t.Errorf("SwapWorkout() = %+v, %v, want name Hill repeats", custom, err)
	}

	if err = s.SetExternalSync(ctx, athleteID, swapped.ID, "evt1", now); err != nil {
		t.Fatalf("SetExternalSync() error = %v", err)
	}
	synced, err := s.Get(ctx, athleteID, swapped.Date, "long_run")
	if err != nil || synced.ExternalSyncID != "evt1" || synced.ExternalSyncDate == nil {
		t.Errorf("Get() = %+v, %v, want synced", synced, err)
	}
}
