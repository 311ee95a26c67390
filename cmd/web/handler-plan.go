package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/myrjola/fitcoach/internal/errors"
	"github.com/myrjola/fitcoach/internal/plan"
)

const modifiedByAthlete = "athlete"

type planStatusResponse struct {
	plan.Progress
	PlanName  string `json:"plan_name,omitempty"`
	StartDate string `json:"start_date,omitempty"`
}

func (app *application) planGET(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	progress, err := app.scheduler.Progress(r.Context(), a.ID, app.now())
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	response := planStatusResponse{Progress: progress, PlanName: "", StartDate: ""}
	if progress.Initialized {
		md, mdErr := app.scheduler.Metadata(r.Context(), a.ID)
		if mdErr != nil {
			app.apiError(w, r, mdErr)
			return
		}
		response.PlanName = md.PlanName
		response.StartDate = md.StartDate.Format(time.DateOnly)
	}
	app.writeJSON(w, r, http.StatusOK, response)
}

type initializePlanRequest struct {
	StartDate string `json:"start_date"`
}

type initializePlanResponse struct {
	Metadata plan.Metadata `json:"metadata"`
	Workouts int           `json:"workouts"`
}

func (app *application) planPOST(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	var req initializePlanRequest
	if err = readJSON(w, r, &req); err != nil {
		app.apiError(w, r, err)
		return
	}
	start, err := plan.ParseDate(req.StartDate)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	md, count, err := app.scheduler.Initialize(r.Context(), a.ID, start)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, initializePlanResponse{Metadata: md, Workouts: count})
}

func (app *application) planWeekGET(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	week, err := parseIntParam(r, "week")
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	summary, err := app.scheduler.WeeklySummary(r.Context(), a.ID, week)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, summary)
}

type completeWorkoutRequest struct {
	Actual json.RawMessage `json:"actual"`
}

type skipWorkoutRequest struct {
	Reason string `json:"reason"`
}

type modifyWorkoutRequest struct {
	Patch  plan.Patch `json:"patch"`
	Reason string     `json:"reason"`
}

// workoutActionPOST completes, skips, or modifies the workout named by the date and type path parameters.
func (app *application) workoutActionPOST(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	date, err := parseDateParam(r, "date")
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	workoutType := r.PathValue("type")

	var workout plan.Workout
	switch action := r.PathValue("action"); action {
	case "complete":
		var req completeWorkoutRequest
		if err = readOptionalJSON(w, r, &req); err != nil {
			break
		}
		workout, err = app.scheduler.MarkCompleted(r.Context(), a.ID, date, workoutType, req.Actual, app.now())
	case "skip":
		var req skipWorkoutRequest
		if err = readOptionalJSON(w, r, &req); err != nil {
			break
		}
		workout, err = app.scheduler.MarkSkipped(r.Context(), a.ID, date, workoutType, req.Reason, modifiedByAthlete)
	case "modify":
		var req modifyWorkoutRequest
		if err = readJSON(w, r, &req); err != nil {
			break
		}
		if req.Patch.IsZero() {
			err = errors.Wrap(errBadRequest, "empty patch")
			break
		}
		workout, err = app.scheduler.ModifyWorkout(r.Context(), a.ID, date, workoutType, req.Patch, req.Reason,
			modifiedByAthlete)
	default:
		app.apiError(w, r, errors.Wrap(errBadRequest, "unknown workout action "+action))
		return
	}
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, workout)
}

// readOptionalJSON is readJSON for endpoints whose body may be empty.
func readOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return readJSON(w, r, dst)
}
