package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/plan"
	"github.com/myrjola/fitcoach/internal/recommend"
	"github.com/myrjola/fitcoach/internal/wellness"
)

const defaultHistoryLimit = 50

type createGoalRequest struct {
	Name          string         `json:"name"`
	MetricType    string         `json:"metric_type"`
	Target        float64        `json:"target_value"`
	Baseline      *float64       `json:"baseline_value"`
	BaselineDate  string         `json:"baseline_date"`
	Direction     goal.Direction `json:"direction"`
	MinAcceptable *float64       `json:"min_acceptable"`
	MaxAcceptable *float64       `json:"max_acceptable"`
	TargetDate    string         `json:"target_date"`
	Priority      int            `json:"priority"`
}

// optionalDate parses an optional YYYY-MM-DD value.
func optionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil //nolint:nilnil // absent date.
	}
	date, err := plan.ParseDate(value)
	if err != nil {
		return nil, err //nolint:wrapcheck // already carries the value.
	}
	return &date, nil
}

func (app *application) goalCreatePOST(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	var req createGoalRequest
	if err = readJSON(w, r, &req); err != nil {
		app.apiError(w, r, err)
		return
	}
	g := goal.Goal{ //nolint:exhaustruct // id is assigned by the database, status defaults to active.
		AthleteID:     a.ID,
		Name:          req.Name,
		MetricType:    req.MetricType,
		Target:        req.Target,
		Baseline:      req.Baseline,
		Direction:     req.Direction,
		MinAcceptable: req.MinAcceptable,
		MaxAcceptable: req.MaxAcceptable,
		Priority:      req.Priority,
	}
	if g.BaselineDate, err = optionalDate(req.BaselineDate); err != nil {
		app.apiError(w, r, err)
		return
	}
	if g.TargetDate, err = optionalDate(req.TargetDate); err != nil {
		app.apiError(w, r, err)
		return
	}
	created, err := app.goals.CreateGoal(r.Context(), g)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, created)
}

type recordMetricRequest struct {
	Date       string          `json:"date"`
	MetricType string          `json:"metric_type"`
	Value      *float64        `json:"value"`
	TextValue  *string         `json:"text_value"`
	JSONValue  json.RawMessage `json:"json_value"`
	Method     string          `json:"method"`
	Notes      string          `json:"notes"`
}

func (app *application) metricPOST(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	var req recordMetricRequest
	if err = readJSON(w, r, &req); err != nil {
		app.apiError(w, r, err)
		return
	}
	date := app.now()
	if req.Date != "" {
		if date, err = plan.ParseDate(req.Date); err != nil {
			app.apiError(w, r, err)
			return
		}
	}
	recorded, err := app.goals.RecordMetric(r.Context(), goal.Metric{
		ID:         0,
		AthleteID:  a.ID,
		Date:       date,
		MetricType: req.MetricType,
		Value:      req.Value,
		TextValue:  req.TextValue,
		JSONValue:  req.JSONValue,
		Method:     req.Method,
		Notes:      req.Notes,
	})
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, recorded)
}

// metricsGET lists the history of the metric type given in the type query parameter, newest first.
func (app *application) metricsGET(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	limit := defaultHistoryLimit
	if value := r.URL.Query().Get("limit"); value != "" {
		if limit, err = strconv.Atoi(value); err != nil || limit < 1 {
			app.apiError(w, r, errBadRequest)
			return
		}
	}
	metricType := r.URL.Query().Get("type")
	if metricType == "" {
		app.apiError(w, r, fmt.Errorf("%w: type query parameter is required", errBadRequest))
		return
	}
	history, err := app.goals.History(r.Context(), a.ID, metricType, limit)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	if history == nil {
		history = []goal.Metric{}
	}
	app.writeJSON(w, r, http.StatusOK, history)
}

func (app *application) goalProgressGET(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	progress, err := app.goals.AnalyzeAll(r.Context(), a.ID, app.now())
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, progress)
}

func (app *application) recommendationsGET(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	result, err := app.recommendations(r, a.ID)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, result)
}

func (app *application) recommendations(r *http.Request, athleteID int) (recommend.Result, error) {
	ctx, now := r.Context(), app.now()
	progress, err := app.goals.AnalyzeAll(ctx, athleteID, now)
	if err != nil {
		return recommend.Result{}, err //nolint:wrapcheck // service errors carry context.
	}
	summary, err := app.wellness.Summary(ctx, athleteID, now, wellness.SummaryDays)
	if err != nil {
		return recommend.Result{}, err //nolint:wrapcheck // service errors carry context.
	}
	snapshot, err := app.wellness.Latest(ctx, athleteID, now)
	if err != nil {
		return recommend.Result{}, err //nolint:wrapcheck // service errors carry context.
	}
	return recommend.Recommend(progress, summary, snapshot), nil
}
