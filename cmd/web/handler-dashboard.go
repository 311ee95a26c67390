package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/myrjola/fitcoach/internal/athlete"
	"github.com/myrjola/fitcoach/internal/errors"
	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/plan"
	"github.com/myrjola/fitcoach/internal/review"
)

const (
	flashKey           = "flash"
	dashboardDays      = 7
	dashboardAuditRows = 5
)

type dashboardTemplateData struct {
	BaseTemplateData
	Athlete     athlete.Athlete
	Progress    plan.Progress
	Upcoming    []plan.Workout
	Goals       []goal.Progress
	Review      *review.DailyReview
	Adjustments []review.PlanAdjustment
}

func dashboardPath(athleteID int) string {
	return fmt.Sprintf("/athletes/%d", athleteID)
}

func (app *application) dashboardGET(w http.ResponseWriter, r *http.Request) {
	ctx, now := r.Context(), app.now()
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.htmlError(w, r, err)
		return
	}
	data := dashboardTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		Athlete:          a,
		Progress:         plan.Progress{},
		Upcoming:         nil,
		Goals:            nil,
		Review:           nil,
		Adjustments:      nil,
	}
	data.Flash = app.sessionManager.PopString(ctx, flashKey)

	if data.Progress, err = app.scheduler.Progress(ctx, a.ID, now); err != nil {
		app.serverError(w, r, err)
		return
	}
	if data.Upcoming, err = app.scheduler.ListRange(ctx, a.ID, now, now.AddDate(0, 0, dashboardDays-1)); err != nil {
		app.serverError(w, r, err)
		return
	}
	if data.Goals, err = app.goals.AnalyzeAll(ctx, a.ID, now); err != nil {
		app.serverError(w, r, err)
		return
	}
	latest, err := app.manager.Latest(ctx, a.ID)
	switch {
	case errors.Is(err, review.ErrNotFound):
	case err != nil:
		app.serverError(w, r, err)
		return
	default:
		data.Review = &latest
	}
	if data.Adjustments, err = app.manager.Adjustments(ctx, a.ID, dashboardAuditRows); err != nil {
		app.serverError(w, r, err)
		return
	}

	app.render(w, r, http.StatusOK, "dashboard", data)
}

// dashboardModificationPOST handles the approve and reject buttons of the dashboard. The outcome is shown as a flash
// message after redirecting back to the dashboard.
func (app *application) dashboardModificationPOST(w http.ResponseWriter, r *http.Request) {
	target, err := app.parseModificationTarget(r)
	if err != nil {
		app.htmlError(w, r, err)
		return
	}
	result, err := app.manager.Act(r.Context(), target.athleteID, target.reviewID, target.index, target.action,
		app.now())
	var flash string
	switch {
	case err == nil:
		item := result.Review.Modifications[target.index]
		flash = fmt.Sprintf("Modification %d %s: %s", target.index+1, item.Status, item.Description)
		if result.Sync != nil && result.Sync.Error != "" {
			flash += ". Calendar sync failed: " + result.Sync.Error
		}
	case statusFor(err) == http.StatusInternalServerError:
		app.serverError(w, r, err)
		return
	case statusFor(err) == http.StatusNotFound:
		app.notFound(w, r)
		return
	default:
		flash = "Could not update modification: " + err.Error()
	}
	app.sessionManager.Put(r.Context(), flashKey, flash)
	redirect(w, r, dashboardPath(target.athleteID))
}

// dashboardEvaluationPOST runs an on-demand evaluation with the notes of the form.
func (app *application) dashboardEvaluationPOST(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.htmlError(w, r, err)
		return
	}
	if err = r.ParseForm(); err != nil {
		app.htmlError(w, r, fmt.Errorf("%w: parse form: %w", errBadRequest, err))
		return
	}
	userContext := strings.TrimSpace(r.PostForm.Get("user_context"))
	result, err := app.manager.Evaluate(r.Context(), a.ID, review.EvaluationOnDemand, userContext, app.now())
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	flash := fmt.Sprintf("Evaluation stored with %d proposed modifications, %d applied automatically.",
		result.ModificationCount, result.AutoApplied)
	if len(result.Errors) > 0 {
		flash = "Evaluation failed: " + strings.Join(result.Errors, "; ")
	}
	app.sessionManager.Put(r.Context(), flashKey, flash)
	redirect(w, r, dashboardPath(a.ID))
}

// htmlError renders the page matching the error status.
func (app *application) htmlError(w http.ResponseWriter, r *http.Request, err error) {
	switch statusFor(err) {
	case http.StatusNotFound:
		app.notFound(w, r)
	case http.StatusInternalServerError:
		app.serverError(w, r, err)
	default:
		http.Error(w, err.Error(), statusFor(err))
	}
}
