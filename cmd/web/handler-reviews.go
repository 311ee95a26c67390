package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/myrjola/fitcoach/internal/review"
)

const adjustmentsLimit = 50

type evaluationRequest struct {
	UserContext string `json:"user_context"`
}

// evaluationPOST runs an on-demand evaluation. Upstream failures are part of the result, not an error status.
func (app *application) evaluationPOST(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	var req evaluationRequest
	if err = readOptionalJSON(w, r, &req); err != nil {
		app.apiError(w, r, err)
		return
	}
	result, err := app.manager.Evaluate(r.Context(), a.ID, review.EvaluationOnDemand, req.UserContext, app.now())
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, result)
}

func (app *application) latestReviewGET(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	latest, err := app.manager.Latest(r.Context(), a.ID)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, latest)
}

func (app *application) reviewGET(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	reviewID, err := parseIntParam(r, "reviewID")
	if err != nil {
		app.apiError(w, r, review.ErrNotFound)
		return
	}
	found, err := app.manager.Get(r.Context(), a.ID, reviewID)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, found)
}

func (app *application) adjustmentsGET(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	adjustments, err := app.manager.Adjustments(r.Context(), a.ID, adjustmentsLimit)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	if adjustments == nil {
		adjustments = []review.PlanAdjustment{}
	}
	app.writeJSON(w, r, http.StatusOK, adjustments)
}

// modificationTarget is the review item addressed by a modification action route.
type modificationTarget struct {
	athleteID int
	reviewID  int
	index     int
	action    review.Action
}

func (app *application) parseModificationTarget(r *http.Request) (modificationTarget, error) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		return modificationTarget{}, err
	}
	reviewID, err := parseIntParam(r, "reviewID")
	if err != nil {
		return modificationTarget{}, review.ErrNotFound
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return modificationTarget{}, fmt.Errorf("%w: modification index %q", review.ErrInvalidState,
			r.PathValue("index"))
	}
	action := review.Action(r.PathValue("action"))
	if action != review.ActionApprove && action != review.ActionReject {
		return modificationTarget{}, fmt.Errorf("%w: unknown action %q", errBadRequest, action)
	}
	return modificationTarget{athleteID: a.ID, reviewID: reviewID, index: index, action: action}, nil
}

// modificationActionPOST approves or rejects one proposed modification.
func (app *application) modificationActionPOST(w http.ResponseWriter, r *http.Request) {
	target, err := app.parseModificationTarget(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	result, err := app.manager.Act(r.Context(), target.athleteID, target.reviewID, target.index, target.action,
		app.now())
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, result)
}
