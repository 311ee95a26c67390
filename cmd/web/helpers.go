package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/myrjola/fitcoach/internal/athlete"
	"github.com/myrjola/fitcoach/internal/errors"
	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/plan"
	"github.com/myrjola/fitcoach/internal/review"
	"github.com/myrjola/fitcoach/internal/wellness"
)

const maxJSONBody = 1 << 20

var errBadRequest = errors.NewSentinel("bad request")

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error", errors.SlogError(err))
	app.render(w, r, http.StatusInternalServerError, "error", newBaseTemplateData(r))
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.render(w, r, http.StatusNotFound, "not-found", newBaseTemplateData(r))
}

// redirect detects if the request is originating from a fetch API call or a top-level navigation and points the user
// to the correct URL.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("Sec-Fetch-Dest") == "empty" {
		w.Header().Set("Content-Location", path)
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, path, http.StatusSeeOther)
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, athlete.ErrNotFound), errors.Is(err, goal.ErrNotFound), errors.Is(err, plan.ErrNotFound),
		errors.Is(err, review.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrInvalidState), errors.Is(err, plan.ErrNotInitialized),
		errors.Is(err, plan.ErrSlotTaken):
		return http.StatusConflict
	case errors.Is(err, errBadRequest), errors.Is(err, athlete.ErrInvalidName), errors.Is(err, goal.ErrInvalidGoal),
		errors.Is(err, goal.ErrInvalidMetric), errors.Is(err, plan.ErrInvalidStartDate),
		errors.Is(err, plan.ErrInvalidDate), errors.Is(err, plan.ErrInvalidWeek), errors.Is(err, plan.ErrInvalidWorkout),
		errors.Is(err, wellness.ErrInvalidActivity):
		return http.StatusBadRequest
	case errors.Is(err, wellness.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// apiError writes err as a JSON error response. Server errors are logged and their details hidden.
func (app *application) apiError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "server error", errors.SlogError(err))
		app.writeJSON(w, r, status, errorResponse{Error: http.StatusText(status)})
		return
	}
	app.logger.LogAttrs(r.Context(), slog.LevelDebug, "client error", slog.Int("status", status),
		slog.Any("error", err))
	app.writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "marshal response", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// readJSON decodes the request body into dst. Unknown fields and trailing data are rejected.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %w", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON value", errBadRequest)
	}
	return nil
}

// parseIntParam parses a positive integer path parameter.
func parseIntParam(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(r.PathValue(name))
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, r.PathValue(name))
	}
	return value, nil
}

// parseDateParam parses a YYYY-MM-DD path parameter.
func parseDateParam(r *http.Request, name string) (time.Time, error) {
	date, err := plan.ParseDate(r.PathValue(name))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %w", errBadRequest, name, err)
	}
	return date, nil
}

// athleteFromPath loads the athlete named by the athleteID path parameter.
func (app *application) athleteFromPath(r *http.Request) (athlete.Athlete, error) {
	athleteID, err := parseIntParam(r, "athleteID")
	if err != nil {
		return athlete.Athlete{}, athlete.ErrNotFound
	}
	a, err := app.athletes.Get(r.Context(), athleteID)
	if err != nil {
		return athlete.Athlete{}, fmt.Errorf("get athlete: %w", err)
	}
	return a, nil
}
