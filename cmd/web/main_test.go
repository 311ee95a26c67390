package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/fitcoach/internal/e2etest"
	"github.com/myrjola/fitcoach/internal/errors"
	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/plan"
	"github.com/myrjola/fitcoach/internal/recommend"
	"github.com/myrjola/fitcoach/internal/review"
	"github.com/myrjola/fitcoach/internal/testhelpers"
)

func testLookupEnv(key string) (string, bool) {
	switch key {
	case "FITCOACH_SQLITE_URL":
		return ":memory:", true
	case "FITCOACH_ADDR":
		return "localhost:0", true
	case "FITCOACH_NIGHTLY_HOUR":
		return "-1", true
	default:
		return "", false
	}
}

func startServer(t *testing.T) *e2etest.Server {
	t.Helper()
	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv, run)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	return server
}

func createAthlete(t *testing.T, client *e2etest.Client, name string) athleteResponse {
	t.Helper()
	var created athleteResponse
	if err := client.PostJSON(t.Context(), "/api/athletes", createAthleteRequest{Name: name}, &created); err != nil {
		t.Fatalf("Failed to create athlete: %v", err)
	}
	return created
}

// mondayOfThisWeek is the start date that places the server clock in week 1 of the plan.
func mondayOfThisWeek() string {
	now := time.Now()
	return now.AddDate(0, 0, -((int(now.Weekday()) + 6) % 7)).Format(time.DateOnly) //nolint:mnd // days per week.
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	var statusErr *e2etest.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want status %d", err, status)
	}
	if statusErr.StatusCode != status {
		t.Errorf("status = %d, want %d (body %s)", statusErr.StatusCode, status, statusErr.Body)
	}
}

func Test_application_athletes(t *testing.T) {
	var (
		server = startServer(t)
		client = server.Client()
		ctx    = t.Context()
	)

	first := createAthlete(t, client, "Ada")
	second := createAthlete(t, client, "Grace")

	var athletes []athleteResponse
	if err := client.GetJSON(ctx, "/api/athletes", &athletes); err != nil {
		t.Fatalf("Failed to list athletes: %v", err)
	}
	var names []string
	for _, a := range athletes {
		names = append(names, a.Name)
	}
	if diff := cmp.Diff([]string{"Ada", "Grace"}, names); diff != "" {
		t.Errorf("athlete names mismatch (-want +got):\n%s", diff)
	}
	if first.ID == second.ID {
		t.Errorf("athletes share id %d", first.ID)
	}

	t.Run("blank name is rejected", func(t *testing.T) {
		err := client.PostJSON(ctx, "/api/athletes", createAthleteRequest{Name: "  "}, nil)
		wantStatus(t, err, http.StatusBadRequest)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		err := client.PostJSON(ctx, "/api/athletes", map[string]string{"name": "Linus", "role": "admin"}, nil)
		wantStatus(t, err, http.StatusBadRequest)
	})

	t.Run("unknown athlete", func(t *testing.T) {
		err := client.GetJSON(ctx, "/api/athletes/9999/plan", nil)
		wantStatus(t, err, http.StatusNotFound)
		err = client.GetJSON(ctx, "/api/athletes/not-a-number/plan", nil)
		wantStatus(t, err, http.StatusNotFound)
	})
}

func Test_application_plan(t *testing.T) {
	var (
		server = startServer(t)
		client = server.Client()
		ctx    = t.Context()
		a      = createAthlete(t, client, "Ada")
		base   = fmt.Sprintf("/api/athletes/%d", a.ID)
	)

	t.Run("status before initialization", func(t *testing.T) {
		var status planStatusResponse
		if err := client.GetJSON(ctx, base+"/plan", &status); err != nil {
			t.Fatalf("Failed to get plan status: %v", err)
		}
		if status.Initialized {
			t.Errorf("plan initialized before POST")
		}
		err := client.PostJSON(ctx, base+"/workouts/"+mondayOfThisWeek()+"/strength_a/complete", nil, nil)
		wantStatus(t, err, http.StatusNotFound)
	})

	t.Run("start date must be a monday", func(t *testing.T) {
		monday, err := plan.ParseDate(mondayOfThisWeek())
		if err != nil {
			t.Fatalf("parse date: %v", err)
		}
		req := initializePlanRequest{StartDate: monday.AddDate(0, 0, 1).Format(time.DateOnly)}
		wantStatus(t, client.PostJSON(ctx, base+"/plan", req, nil), http.StatusBadRequest)
		req = initializePlanRequest{StartDate: "next monday"}
		wantStatus(t, client.PostJSON(ctx, base+"/plan", req, nil), http.StatusBadRequest)
	})

	var initialized initializePlanResponse
	if err := client.PostJSON(ctx, base+"/plan", initializePlanRequest{StartDate: mondayOfThisWeek()},
		&initialized); err != nil {
		t.Fatalf("Failed to initialize plan: %v", err)
	}
	if initialized.Metadata.TotalWeeks != 24 || initialized.Workouts == 0 {
		t.Fatalf("unexpected initialization %+v", initialized)
	}

	var status planStatusResponse
	if err := client.GetJSON(ctx, base+"/plan", &status); err != nil {
		t.Fatalf("Failed to get plan status: %v", err)
	}
	want := planStatusResponse{
		Progress: plan.Progress{
			Initialized:   true,
			CurrentWeek:   1,
			TotalWeeks:    24,
			IsTestWeek:    true,
			Counts:        status.Counts,
			Total:         initialized.Workouts,
			AdherenceRate: 0,
		},
		PlanName:  "Hybrid 24",
		StartDate: mondayOfThisWeek(),
	}
	if diff := cmp.Diff(want, status); diff != "" {
		t.Errorf("plan status mismatch (-want +got):\n%s", diff)
	}

	var week plan.WeekSummary
	if err := client.GetJSON(ctx, base+"/plan/weeks/1", &week); err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}
	if len(week.Workouts) == 0 {
		t.Fatal("week 1 has no workouts")
	}
	first := week.Workouts[0]
	workoutPath := fmt.Sprintf("%s/workouts/%s/%s", base, first.Date.Format(time.DateOnly), first.WorkoutType)

	t.Run("modify requires a patch", func(t *testing.T) {
		err := client.PostJSON(ctx, workoutPath+"/modify", modifyWorkoutRequest{Reason: "nothing"}, nil)
		wantStatus(t, err, http.StatusBadRequest)
	})

	t.Run("modify then complete", func(t *testing.T) {
		intensity := 0.9
		var modified plan.Workout
		if err := client.PostJSON(ctx, workoutPath+"/modify", modifyWorkoutRequest{
			Patch:  plan.Patch{IntensityModifier: &intensity}, //nolint:exhaustruct // only intensity.
			Reason: "tired legs",
		}, &modified); err != nil {
			t.Fatalf("Failed to modify workout: %v", err)
		}
		if modified.Status != plan.StatusModified || modified.ModifiedBy != modifiedByAthlete {
			t.Errorf("modified workout status %s by %q", modified.Status, modified.ModifiedBy)
		}

		var completed plan.Workout
		if err := client.PostJSON(ctx, workoutPath+"/complete",
			completeWorkoutRequest{Actual: []byte(`{"rpe": 7}`)}, &completed); err != nil {
			t.Fatalf("Failed to complete workout: %v", err)
		}
		if completed.Status != plan.StatusCompleted || completed.CompletedAt == nil {
			t.Errorf("completed workout status %s, completed at %v", completed.Status, completed.CompletedAt)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		wantStatus(t, client.PostJSON(ctx, workoutPath+"/postpone", nil, nil), http.StatusBadRequest)
	})

	t.Run("adherence after completion", func(t *testing.T) {
		var after planStatusResponse
		if err := client.GetJSON(ctx, base+"/plan", &after); err != nil {
			t.Fatalf("Failed to get plan status: %v", err)
		}
		if after.AdherenceRate != 100 || after.Counts[plan.StatusCompleted] != 1 {
			t.Errorf("adherence %v with counts %v", after.AdherenceRate, after.Counts)
		}
	})

	t.Run("week out of range", func(t *testing.T) {
		wantStatus(t, client.GetJSON(ctx, base+"/plan/weeks/25", nil), http.StatusBadRequest)
	})
}

func Test_application_goals(t *testing.T) {
	var (
		server = startServer(t)
		client = server.Client()
		ctx    = t.Context()
		a      = createAthlete(t, client, "Ada")
		base   = fmt.Sprintf("/api/athletes/%d", a.ID)
	)

	baseline := 100.0
	var created goal.Goal
	if err := client.PostJSON(ctx, base+"/goals", map[string]any{
		"name":           "Back squat 1RM",
		"metric_type":    "squat_1rm",
		"target_value":   120,
		"baseline_value": baseline,
		"direction":      "increase",
	}, &created); err != nil {
		t.Fatalf("Failed to create goal: %v", err)
	}
	if created.Status != goal.StatusActive || created.Priority != 1 {
		t.Errorf("created goal status %s priority %d", created.Status, created.Priority)
	}

	t.Run("invalid direction", func(t *testing.T) {
		err := client.PostJSON(ctx, base+"/goals", map[string]any{
			"name": "Sideways", "metric_type": "squat_1rm", "target_value": 1, "direction": "sideways",
		}, nil)
		wantStatus(t, err, http.StatusBadRequest)
	})

	t.Run("metric without value", func(t *testing.T) {
		err := client.PostJSON(ctx, base+"/metrics", map[string]any{"metric_type": "squat_1rm"}, nil)
		wantStatus(t, err, http.StatusBadRequest)
	})

	value := 110.0
	if err := client.PostJSON(ctx, base+"/metrics", recordMetricRequest{ //nolint:exhaustruct // numeric metric.
		MetricType: "squat_1rm",
		Value:      &value,
		Method:     "tested",
	}, nil); err != nil {
		t.Fatalf("Failed to record metric: %v", err)
	}

	var history []goal.Metric
	if err := client.GetJSON(ctx, base+"/metrics?type=squat_1rm", &history); err != nil {
		t.Fatalf("Failed to get metric history: %v", err)
	}
	if len(history) != 1 || history[0].Value == nil || *history[0].Value != value {
		t.Errorf("unexpected history %+v", history)
	}
	wantStatus(t, client.GetJSON(ctx, base+"/metrics", nil), http.StatusBadRequest)

	var progress []goal.Progress
	if err := client.GetJSON(ctx, base+"/goals/progress", &progress); err != nil {
		t.Fatalf("Failed to get goal progress: %v", err)
	}
	if len(progress) != 1 {
		t.Fatalf("got %d goal progress entries, want 1", len(progress))
	}
	if progress[0].ProgressPercent != 50 || progress[0].Status != goal.ProgressInProgress {
		t.Errorf("progress %v%% with status %s, want 50%% in progress", progress[0].ProgressPercent,
			progress[0].Status)
	}

	var recommendations recommend.Result
	if err := client.GetJSON(ctx, base+"/recommendations", &recommendations); err != nil {
		t.Fatalf("Failed to get recommendations: %v", err)
	}
	if len(recommendations.Template) == 0 {
		t.Error("recommendations have no weekly template")
	}
}

func Test_application_evaluation(t *testing.T) {
	var (
		server = startServer(t)
		client = server.Client()
		ctx    = t.Context()
		a      = createAthlete(t, client, "Ada")
		base   = fmt.Sprintf("/api/athletes/%d", a.ID)
	)

	wantStatus(t, client.GetJSON(ctx, base+"/reviews/latest", nil), http.StatusNotFound)

	if err := client.PostJSON(ctx, base+"/plan", initializePlanRequest{StartDate: mondayOfThisWeek()},
		nil); err != nil {
		t.Fatalf("Failed to initialize plan: %v", err)
	}

	// Without an OpenAI API key the advisor is unavailable and the failure is stored as a review.
	var result review.EvaluationResult
	if err := client.PostJSON(ctx, base+"/evaluations", map[string]string{"user_context": "knee feels sore"},
		&result); err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if result.Review.Status != review.StatusError || len(result.Errors) != 1 {
		t.Fatalf("evaluation status %s with errors %v, want error review", result.Review.Status, result.Errors)
	}

	var latest review.DailyReview
	if err := client.GetJSON(ctx, base+"/reviews/latest", &latest); err != nil {
		t.Fatalf("Failed to get latest review: %v", err)
	}
	if diff := cmp.Diff(result.Review.ID, latest.ID); diff != "" {
		t.Errorf("latest review id mismatch (-want +got):\n%s", diff)
	}
	if latest.UserContext != "knee feels sore" {
		t.Errorf("user context = %q", latest.UserContext)
	}

	reviewPath := fmt.Sprintf("%s/reviews/%d", base, latest.ID)
	t.Run("review by id", func(t *testing.T) {
		var got review.DailyReview
		if err := client.GetJSON(ctx, reviewPath, &got); err != nil {
			t.Fatalf("Failed to get review: %v", err)
		}
		if got.ErrorMessage == "" {
			t.Error("error review has no error message")
		}
		wantStatus(t, client.GetJSON(ctx, fmt.Sprintf("%s/reviews/%d", base, latest.ID+100), nil),
			http.StatusNotFound)
	})

	t.Run("error review has no modifications to act on", func(t *testing.T) {
		wantStatus(t, client.PostJSON(ctx, reviewPath+"/modifications/0/approve", nil, nil), http.StatusConflict)
		wantStatus(t, client.PostJSON(ctx, reviewPath+"/modifications/0/defer", nil, nil),
			http.StatusBadRequest)
	})

	t.Run("no adjustments", func(t *testing.T) {
		var adjustments []review.PlanAdjustment
		if err := client.GetJSON(ctx, base+"/adjustments", &adjustments); err != nil {
			t.Fatalf("Failed to get adjustments: %v", err)
		}
		if len(adjustments) != 0 {
			t.Errorf("got %d adjustments, want none", len(adjustments))
		}
	})

	t.Run("wellness provider unavailable", func(t *testing.T) {
		err := client.PostJSON(ctx, base+"/wellness/"+mondayOfThisWeek()+"/import", nil, nil)
		wantStatus(t, err, http.StatusBadGateway)
	})
}

func Test_application_export(t *testing.T) {
	var (
		server = startServer(t)
		client = server.Client()
		ctx    = t.Context()
		a      = createAthlete(t, client, "Ada")
	)

	resp, err := client.Get(ctx, fmt.Sprintf("/api/athletes/%d/export", a.ID))
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/x-sqlite3" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(got, "attachment;") {
		t.Errorf("Content-Disposition = %q", got)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(body), "SQLite format 3\x00") {
		t.Errorf("export is not a SQLite database")
	}
}
