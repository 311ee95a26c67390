package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/fitcoach/internal/calendar"
	"github.com/myrjola/fitcoach/internal/errors"
	"github.com/myrjola/fitcoach/internal/logging"
	"github.com/myrjola/fitcoach/internal/review"
	"github.com/myrjola/fitcoach/internal/wellness"
)

const (
	// syncDays is how far ahead the nightly run pushes workouts to the calendar.
	syncDays = 7
	// slowNightly captures a trace when the nightly run takes longer.
	slowNightly = 10 * time.Minute
)

// nextNightlyRun returns the first time at hour:00 strictly after now, in now's location.
func nextNightlyRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runNightly runs the nightly jobs every day at hour until ctx is done.
func (app *application) runNightly(ctx context.Context, hour int) {
	for {
		next := nextNightlyRun(app.now(), hour)
		app.logger.LogAttrs(ctx, slog.LevelDebug, "scheduled nightly run", slog.Time("at", next))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		app.nightly(ctx, app.now())
	}
}

// nightly imports wellness data, evaluates every athlete, marks achieved goals, pushes upcoming workouts to the
// calendar, and finally sweeps stale reviews. A failing athlete does not stop the others.
func (app *application) nightly(ctx context.Context, now time.Time) {
	start := time.Now()
	athletes, err := app.athletes.List(ctx)
	if err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "nightly run failed", errors.SlogError(
			errors.Wrap(err, "list athletes")))
		return
	}
	for _, a := range athletes {
		app.nightlyAthlete(logging.WithAttrs(ctx, slog.Int("athlete_id", a.ID)), a.ID, now)
	}
	deleted, err := app.manager.Sweep(ctx, now)
	if err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "sweep failed", errors.SlogError(err))
	}
	duration := time.Since(start)
	app.logger.LogAttrs(ctx, slog.LevelInfo, "nightly run completed", slog.Int("athletes", len(athletes)),
		slog.Int("swept_reviews", deleted), slog.Duration("duration", duration))
	if duration > slowNightly {
		app.traces.Capture(ctx, "nightly")
	}
}

func (app *application) nightlyAthlete(ctx context.Context, athleteID int, now time.Time) {
	imported, err := app.wellness.Import(ctx, athleteID, now)
	switch {
	case errors.Is(err, wellness.ErrProviderUnavailable):
		app.logger.LogAttrs(ctx, slog.LevelInfo, "wellness import unavailable", errors.SlogError(err))
	case err != nil:
		app.logger.LogAttrs(ctx, slog.LevelWarn, "wellness import failed", errors.SlogError(err))
	default:
		app.logger.LogAttrs(ctx, slog.LevelInfo, "imported wellness",
			slog.Int("inserted", imported.Inserted), slog.Int("duplicates", imported.Duplicates))
	}

	result, err := app.manager.Evaluate(ctx, athleteID, review.EvaluationNightly, "", now)
	if err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "nightly evaluation failed", errors.SlogError(err))
	} else {
		app.logger.LogAttrs(ctx, slog.LevelInfo, "nightly evaluation stored",
			slog.Int("review_id", result.Review.ID), slog.String("status", string(result.Review.Status)),
			slog.Int("modifications", result.ModificationCount), slog.Int("auto_applied", result.AutoApplied),
			slog.Int("errors", len(result.Errors)))
	}

	achieved, err := app.goals.MarkAchieved(ctx, athleteID, now)
	if err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "goal achievement job failed", errors.SlogError(err))
	} else if len(achieved) > 0 {
		app.logger.LogAttrs(ctx, slog.LevelInfo, "goals achieved", slog.Int("count", len(achieved)))
	}

	synced, err := app.manager.SyncUpcoming(ctx, athleteID, now, syncDays)
	switch {
	case errors.Is(err, calendar.ErrDisabled):
	case err != nil:
		app.logger.LogAttrs(ctx, slog.LevelWarn, "calendar sync failed", slog.Int("synced", synced),
			errors.SlogError(err))
	case synced > 0:
		app.logger.LogAttrs(ctx, slog.LevelInfo, "synced workouts to calendar", slog.Int("synced", synced))
	}
}
