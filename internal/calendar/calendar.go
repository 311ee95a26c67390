// Package calendar mirrors scheduled workouts to an external calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/fitcoach/internal/plan"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrDisabled is returned by the Disabled syncer.
var ErrDisabled = errors.New("calendar sync disabled")

// Syncer pushes workouts to an external calendar.
type Syncer interface {
	// Push creates or replaces the calendar event of the workout and returns the event id.
	Push(ctx context.Context, w plan.Workout) (string, error)
	// Delete removes an event. Deleting a missing event is not an error.
	Delete(ctx context.Context, eventID string) error
}

// Disabled is the syncer used when no calendar is configured.
type Disabled struct{}

func (Disabled) Push(context.Context, plan.Workout) (string, error) { return "", ErrDisabled }

func (Disabled) Delete(context.Context, string) error { return ErrDisabled }

// eventNamespace scopes the deterministic event ids.
var eventNamespace = uuid.MustParse("7c0f4b8e-5d0a-4f55-9a0e-3c8f2b6d1e47")

// EventID derives the event id of a workout. The date is part of the id so that a rescheduled workout gets a fresh
// event instead of colliding with the cancelled one.
func EventID(w plan.Workout) string {
	key := fmt.Sprintf("%d|%d|%s|%s", w.AthleteID, w.ID, w.Date.Format(time.DateOnly), w.WorkoutType)
	return strings.ReplaceAll(uuid.NewSHA1(eventNamespace, []byte(key)).String(), "-", "")
}

// Google syncs to a Google Calendar.
type Google struct {
	service    *gcal.Service
	calendarID string
	logger     *slog.Logger
}

// NewGoogle creates a Google Calendar syncer. Options are passed to the API client, typically
// option.WithCredentialsFile.
func NewGoogle(ctx context.Context, calendarID string, logger *slog.Logger, opts ...option.ClientOption) (*Google, error) {
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Google{service: service, calendarID: calendarID, logger: logger}, nil
}

// Push inserts the workout as an all-day event, updating it if the id already exists.
func (g *Google) Push(ctx context.Context, w plan.Workout) (string, error) {
	event := toEvent(w)
	_, err := g.service.Events.Insert(g.calendarID, event).Context(ctx).Do()
	if isStatus(err, http.StatusConflict) {
		_, err = g.service.Events.Update(g.calendarID, event.Id, event).Context(ctx).Do()
	}
	if err != nil {
		return "", fmt.Errorf("push event %s: %w", event.Id, err)
	}
	g.logger.LogAttrs(ctx, slog.LevelDebug, "pushed calendar event",
		slog.String("event_id", event.Id), slog.Int("workout_id", w.ID))
	return event.Id, nil
}

// Delete removes the event.
func (g *Google) Delete(ctx context.Context, eventID string) error {
	err := g.service.Events.Delete(g.calendarID, eventID).Context(ctx).Do()
	if isStatus(err, http.StatusNotFound) || isStatus(err, http.StatusGone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func toEvent(w plan.Workout) *gcal.Event {
	var description strings.Builder
	if w.IsTestWeek {
		description.WriteString("Test week.\n")
	}
	if w.DurationMinutes > 0 {
		fmt.Fprintf(&description, "Duration: %d min\n", w.DurationMinutes)
	}
	for _, phase := range w.Definition.Phases {
		fmt.Fprintf(&description, "\n%s\n", phase.Name)
		for _, e := range phase.Exercises {
			description.WriteString("- ")
			description.WriteString(describeExercise(e))
			description.WriteString("\n")
		}
	}
	if w.Definition.Notes != "" {
		description.WriteString("\n")
		description.WriteString(w.Definition.Notes)
	}
	return &gcal.Event{ //nolint:exhaustruct // only need to set a few fields.
		Id:          EventID(w),
		Summary:     w.Name,
		Description: strings.TrimSpace(description.String()),
		Start:       &gcal.EventDateTime{Date: w.Date.Format(time.DateOnly)},                  //nolint:exhaustruct // all-day.
		End:         &gcal.EventDateTime{Date: w.Date.AddDate(0, 0, 1).Format(time.DateOnly)}, //nolint:exhaustruct // all-day.
	}
}

func describeExercise(e plan.Exercise) string {
	var s string
	switch e.Kind {
	case plan.KindSets:
		s = fmt.Sprintf("%s %dx%d", e.Name, e.Sets, e.Reps)
	case plan.KindTimed:
		s = fmt.Sprintf("%s %s", e.Name, time.Duration(e.DurationSeconds)*time.Second)
	case plan.KindDistance:
		s = fmt.Sprintf("%s %dm", e.Name, e.DistanceMeters)
	default:
		s = e.Name
	}
	if e.Intensity != "" {
		s += " @ " + e.Intensity
	}
	return s
}
