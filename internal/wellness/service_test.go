package wellness_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/ptr"
	"github.com/myrjola/fitcoach/internal/sqlite"
	"github.com/myrjola/fitcoach/internal/testhelpers"
	"github.com/myrjola/fitcoach/internal/wellness"
)

const athleteID = 1

//nolint:gochecknoglobals // fixed test clock.
var today = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type providerFunc func(ctx context.Context, athleteID int, date time.Time) (wellness.Daily, error)

func (f providerFunc) Fetch(ctx context.Context, athleteID int, date time.Time) (wellness.Daily, error) {
	return f(ctx, athleteID, date)
}

func newServices(t *testing.T, provider wellness.Provider) (*wellness.Service, *goal.Service) {
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
	goals := goal.NewService(db, logger)
	return wellness.NewService(db, provider, goals, logger), goals
}

func TestService_Import(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	vo2 := 48.0
	provider := providerFunc(func(_ context.Context, _ int, date time.Time) (wellness.Daily, error) {
		return wellness.Daily{
			Snapshot: wellness.Snapshot{SleepScore: ptr.Ref(82), TrainingReadiness: ptr.Ref(71), VO2Max: ptr.Ref(vo2)},
			Activities: []wellness.Activity{
				{Source: wellness.SourceProvider, ExternalID: "a1", Type: wellness.TypeRun, Date: date, DurationMinutes: 40},
				{Source: wellness.SourceProvider, ExternalID: "a2", Type: wellness.TypeSwim, Date: date, DurationMinutes: 30},
			},
		}, nil
	})
	svc, goals := newServices(t, provider)

	result, err := svc.Import(ctx, athleteID, today)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Inserted != 2 || result.Duplicates != 0 {
		t.Errorf("first Import() = %+v, want 2 inserted", result)
	}

	// A second import of the same day updates the snapshot and skips known activities.
	vo2 = 49
	if result, err = svc.Import(ctx, athleteID, today); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Inserted != 0 || result.Duplicates != 2 {
		t.Errorf("second Import() = %+v, want 2 duplicates", result)
	}
	// Unchanged estimate is not recorded again.
	if _, err = svc.Import(ctx, athleteID, today); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	history, err := goals.History(ctx, athleteID, "vo2_max", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	var values []float64
	for _, m := range history {
		values = append(values, *m.Value)
	}
	if diff := cmp.Diff([]float64{49, 48}, values); diff != "" {
		t.Errorf("vo2_max history mismatch (-want +got):\n%s", diff)
	}

	latest, err := svc.Latest(ctx, athleteID, today)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest == nil || *latest.VO2Max != 49 || *latest.TrainingReadiness != 71 || !latest.Date.Equal(today) {
		t.Errorf("Latest() = %+v, want the updated snapshot of today", latest)
	}
}

func TestService_ImportProviderFailure(t *testing.T) {
	t.Parallel()
	svc, _ := newServices(t, wellness.Unavailable{})

	if _, err := svc.Import(t.Context(), athleteID, today); !errors.Is(err, wellness.ErrProviderUnavailable) {
		t.Errorf("Import() error = %v, want %v", err, wellness.ErrProviderUnavailable)
	}
	latest, err := svc.Latest(t.Context(), athleteID, today)
	if err != nil || latest != nil {
		t.Errorf("Latest() = %v, %v, want no snapshot", latest, err)
	}
}

func TestService_ImportStrengthAndSummary(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	svc, _ := newServices(t, wellness.Unavailable{})

	sessions := []wellness.StrengthSession{
		{
			ExternalID: "s1", Name: "Lower body", Date: today.AddDate(0, 0, -2), DurationMinutes: 50,
			Exercises: []wellness.StrengthExercise{
				{Name: "Squat", Sets: []wellness.StrengthSet{{Reps: 5, WeightKg: 100}, {Reps: 5, WeightKg: 100}}},
				{Name: "Lunge", Sets: []wellness.StrengthSet{{Reps: 10, WeightKg: 20}}},
			},
		},
		// Older than the summary window.
		{ExternalID: "s0", Name: "Old", Date: today.AddDate(0, 0, -20), DurationMinutes: 30},
	}
	result, err := svc.ImportStrength(ctx, athleteID, sessions)
	if err != nil {
		t.Fatalf("ImportStrength() error = %v", err)
	}
	if result.Inserted != 2 {
		t.Errorf("ImportStrength() = %+v, want 2 inserted", result)
	}

	activities, err := svc.Activities(ctx, athleteID, today, wellness.SummaryDays)
	if err != nil {
		t.Fatalf("Activities() error = %v", err)
	}
	if len(activities) != 1 || activities[0].VolumeKg == nil || *activities[0].VolumeKg != 1200 {
		t.Fatalf("Activities() = %+v, want one session with volume 1200", activities)
	}

	if _, err = svc.ImportStrength(ctx, athleteID, []wellness.StrengthSession{{Name: "no id", Date: today}}); !errors.Is(
		err, wellness.ErrInvalidActivity) {
		t.Errorf("ImportStrength() without external id error = %v, want %v", err, wellness.ErrInvalidActivity)
	}

	summary, err := svc.Summary(ctx, athleteID, today, wellness.SummaryDays)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	want := wellness.ActivitySummary{
		Days:             wellness.SummaryDays,
		CountsByType:     map[string]int{wellness.TypeStrength: 1},
		TotalMinutes:     50,
		StrengthSessions: 1,
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("Summary() mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	activities := []wellness.Activity{
		{Type: wellness.TypeRun, DurationMinutes: 30},
		{Type: wellness.TypeBike, DurationMinutes: 60},
		{Type: wellness.TypeSwim, DurationMinutes: 20},
		{Type: wellness.TypeStrength, DurationMinutes: 45},
		{Type: wellness.TypeOther, DurationMinutes: 15},
	}
	got := wellness.Summarize(activities, 14)
	want := wellness.ActivitySummary{
		Days: 14,
		CountsByType: map[string]int{
			wellness.TypeRun: 1, wellness.TypeBike: 1, wellness.TypeSwim: 1, wellness.TypeStrength: 1, wellness.TypeOther: 1,
		},
		TotalMinutes:     170,
		CardioSessions:   3,
		StrengthSessions: 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
	}
}

func TestService_WeeklyAverages(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	readings := map[string]int{
		today.Format(time.DateOnly):                   80,
		today.AddDate(0, 0, -6).Format(time.DateOnly): 60,
		// Outside the seven day window.
		today.AddDate(0, 0, -7).Format(time.DateOnly): 10,
	}
	provider := providerFunc(func(_ context.Context, _ int, date time.Time) (wellness.Daily, error) {
		return wellness.Daily{Snapshot: wellness.Snapshot{SleepScore: ptr.Ref(readings[date.Format(time.DateOnly)])}}, nil
	})
	svc, _ := newServices(t, provider)
	for _, offset := range []int{0, -6, -7} {
		if _, err := svc.Import(ctx, athleteID, today.AddDate(0, 0, offset)); err != nil {
			t.Fatalf("Import() error = %v", err)
		}
	}

	averages, err := svc.WeeklyAverages(ctx, athleteID, today)
	if err != nil {
		t.Fatalf("WeeklyAverages() error = %v", err)
	}
	want := wellness.Averages{Days: wellness.AverageDays, SleepScore: ptr.Ref(70.0)}
	if diff := cmp.Diff(want, averages); diff != "" {
		t.Errorf("WeeklyAverages() mismatch (-want +got):\n%s", diff)
	}
}
