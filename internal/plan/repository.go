package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/fitcoach/internal/sqlite"
)

const (
	dateFormat      = time.DateOnly
	timestampFormat = "2006-01-02T15:04:05.000Z"
)

type sqliteRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newSQLiteRepository(db *sqlite.Database, logger *slog.Logger) *sqliteRepository {
	return &sqliteRepository{db: db, logger: logger}
}

const workoutColumns = `id, athlete_id, scheduled_date, workout_type, name, week_number, day_of_week, is_test_week,
       duration_minutes, definition, status, modification_reason, modified_by, actual_data, completed_at,
       external_sync_id, external_sync_date`

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkout(row scanner) (Workout, error) {
	var (
		w                                     Workout
		date, definition                      string
		actualData, completedAt, externalSync sql.NullString
		err                                   error
	)
	if err = row.Scan(&w.ID, &w.AthleteID, &date, &w.WorkoutType, &w.Name, &w.WeekNumber, &w.DayOfWeek, &w.IsTestWeek,
		&w.DurationMinutes, &definition, &w.Status, &w.ModificationReason, &w.ModifiedBy, &actualData, &completedAt,
		&w.ExternalSyncID, &externalSync); err != nil {
		return Workout{}, err //nolint:wrapcheck // callers wrap with context.
	}
	if w.Date, err = time.Parse(dateFormat, date); err != nil {
		return Workout{}, fmt.Errorf("parse scheduled_date: %w", err)
	}
	if w.Definition, err = UnmarshalDefinition(definition); err != nil {
		return Workout{}, err
	}
	if actualData.Valid {
		w.ActualData = json.RawMessage(actualData.String)
	}
	if w.CompletedAt, err = parseNullTimestamp(completedAt); err != nil {
		return Workout{}, fmt.Errorf("parse completed_at: %w", err)
	}
	if w.ExternalSyncDate, err = parseNullTimestamp(externalSync); err != nil {
		return Workout{}, fmt.Errorf("parse external_sync_date: %w", err)
	}
	return w, nil
}

func parseNullTimestamp(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil //nolint:nilnil // NULL timestamp.
	}
	t, err := time.Parse(timestampFormat, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	return &t, nil
}

func formatNullTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timestampFormat)
	return &s
}

// initialize stores the metadata and upserts every workout in one transaction. Workouts that already left the
// scheduled state keep their content, and a slot whose workout was moved or swapped away is not generated again.
func (r *sqliteRepository) initialize(ctx context.Context, md Metadata, workouts []Workout) error {
	testWeeks, err := json.Marshal(md.TestWeeks)
	if err != nil {
		return fmt.Errorf("marshal test weeks: %w", err)
	}
	return r.db.WithTx(ctx, func(tx *sql.Tx) (err error) { //nolint:wrapcheck // WithTx wraps.
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO plan_metadata (athlete_id, plan_name, start_date, total_weeks, test_weeks)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (athlete_id) DO UPDATE SET
				plan_name   = excluded.plan_name,
				start_date  = excluded.start_date,
				total_weeks = excluded.total_weeks,
				test_weeks  = excluded.test_weeks`,
			md.AthleteID, md.PlanName, md.StartDate.Format(dateFormat), md.TotalWeeks, string(testWeeks)); err != nil {
			return fmt.Errorf("upsert plan metadata: %w", err)
		}

		taken, err := changedSlots(ctx, tx, md.AthleteID)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scheduled_workouts (athlete_id, scheduled_date, workout_type, name, week_number, day_of_week,
			                                is_test_week, duration_minutes, definition, origin_date, origin_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (athlete_id, scheduled_date, workout_type) DO UPDATE SET
				name             = excluded.name,
				week_number      = excluded.week_number,
				day_of_week      = excluded.day_of_week,
				is_test_week     = excluded.is_test_week,
				duration_minutes = excluded.duration_minutes,
				definition       = excluded.definition
			WHERE scheduled_workouts.status = 'scheduled'`)
		if err != nil {
			return fmt.Errorf("prepare upsert workout: %w", err)
		}
		defer func() {
			if closeErr := stmt.Close(); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("close statement: %w", closeErr))
			}
		}()
		for _, w := range workouts {
			date := w.Date.Format(dateFormat)
			if _, ok := taken[slotKey{date: date, workoutType: w.WorkoutType}]; ok {
				continue
			}
			var definition string
			if definition, err = MarshalDefinition(w.Definition); err != nil {
				return err
			}
			if _, err = stmt.ExecContext(ctx, md.AthleteID, date, w.WorkoutType, w.Name, w.WeekNumber, w.DayOfWeek,
				w.IsTestWeek, w.DurationMinutes, definition, date, w.WorkoutType); err != nil {
				return fmt.Errorf("upsert workout %s on %s: %w", w.WorkoutType, w.Date.Format(dateFormat), err)
			}
		}
		return nil
	})
}

type slotKey struct {
	date        string
	workoutType string
}

// changedSlots returns the generated slots whose workout no longer sits on its original date and type.
func changedSlots(ctx context.Context, tx *sql.Tx, athleteID int) (_ map[slotKey]struct{}, err error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT origin_date, origin_type
		FROM scheduled_workouts
		WHERE athlete_id = ?
		  AND origin_date != ''
		  AND (origin_date != scheduled_date OR origin_type != workout_type)`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("query changed slots: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()
	taken := make(map[slotKey]struct{})
	for rows.Next() {
		var key slotKey
		if err = rows.Scan(&key.date, &key.workoutType); err != nil {
			return nil, fmt.Errorf("scan changed slot: %w", err)
		}
		taken[key] = struct{}{}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changed slots: %w", err)
	}
	return taken, nil
}

func (r *sqliteRepository) getMetadata(ctx context.Context, athleteID int) (Metadata, error) {
	var (
		md                   = Metadata{AthleteID: athleteID}
		startDate, testWeeks string
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT plan_name, start_date, total_weeks, test_weeks FROM plan_metadata WHERE athlete_id = ?`, athleteID,
	).Scan(&md.PlanName, &startDate, &md.TotalWeeks, &testWeeks)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, ErrNotInitialized
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("query plan metadata: %w", err)
	}
	if md.StartDate, err = time.Parse(dateFormat, startDate); err != nil {
		return Metadata{}, fmt.Errorf("parse start_date: %w", err)
	}
	if err = json.Unmarshal([]byte(testWeeks), &md.TestWeeks); err != nil {
		return Metadata{}, fmt.Errorf("unmarshal test_weeks: %w", err)
	}
	return md, nil
}

func (r *sqliteRepository) getWorkout(ctx context.Context, athleteID int, date time.Time, workoutType string) (
	Workout, error,
) {
	w, err := scanWorkout(r.db.ReadOnly.QueryRowContext(ctx, `SELECT `+workoutColumns+`
		FROM scheduled_workouts
		WHERE athlete_id = ? AND scheduled_date = ? AND workout_type = ?`,
		athleteID, date.Format(dateFormat), workoutType))
	if errors.Is(err, sql.ErrNoRows) {
		return Workout{}, ErrNotFound
	}
	if err != nil {
		return Workout{}, fmt.Errorf("query workout: %w", err)
	}
	return w, nil
}

// updateWorkout loads the workout identified by the where clause, lets updateFn modify it, and persists every
// mutable column when updateFn reports a change.
func (r *sqliteRepository) updateWorkout(
	ctx context.Context, updateFn func(w *Workout) (bool, error), where string, args ...any,
) (Workout, error) {
	var updated Workout
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		w, err := scanWorkout(tx.QueryRowContext(ctx, `SELECT `+workoutColumns+` FROM scheduled_workouts WHERE `+where,
			args...))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("query workout: %w", err)
		}
		changed, err := updateFn(&w)
		if err != nil {
			return err
		}
		updated = w
		if !changed {
			return nil
		}
		definition, err := MarshalDefinition(w.Definition)
		if err != nil {
			return err
		}
		var actualData *string
		if len(w.ActualData) > 0 {
			s := string(w.ActualData)
			actualData = &s
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE scheduled_workouts
			SET scheduled_date      = ?,
			    workout_type        = ?,
			    name                = ?,
			    week_number         = ?,
			    day_of_week         = ?,
			    definition          = ?,
			    status              = ?,
			    modification_reason = ?,
			    modified_by         = ?,
			    actual_data         = ?,
			    completed_at        = ?,
			    external_sync_id    = ?,
			    external_sync_date  = ?
			WHERE id = ?`,
			w.Date.Format(dateFormat), w.WorkoutType, w.Name, w.WeekNumber, w.DayOfWeek, definition, w.Status,
			w.ModificationReason, w.ModifiedBy, actualData, formatNullTimestamp(w.CompletedAt), w.ExternalSyncID,
			formatNullTimestamp(w.ExternalSyncDate), w.ID)
		if sqlite.IsUniqueViolation(err) {
			return ErrSlotTaken
		}
		if err != nil {
			return fmt.Errorf("update workout %d: %w", w.ID, err)
		}
		return nil
	})
	if err != nil {
		return Workout{}, err //nolint:wrapcheck // WithTx wraps.
	}
	return updated, nil
}

// listWorkouts returns the athlete's workouts matching the condition ordered by date and workout type.
func (r *sqliteRepository) listWorkouts(ctx context.Context, athleteID int, condition string, args ...any) (
	_ []Workout, err error,
) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `SELECT `+workoutColumns+`
		FROM scheduled_workouts
		WHERE athlete_id = ? AND `+condition+`
		ORDER BY scheduled_date, day_of_week, workout_type`, append([]any{athleteID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query workouts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var workouts []Workout
	for rows.Next() {
		var w Workout
		if w, err = scanWorkout(rows); err != nil {
			return nil, fmt.Errorf("scan workout: %w", err)
		}
		workouts = append(workouts, w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return workouts, nil
}

func (r *sqliteRepository) statusCounts(ctx context.Context, athleteID int) (_ map[Status]int, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM scheduled_workouts WHERE athlete_id = ? GROUP BY status`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	counts := map[Status]int{StatusScheduled: 0, StatusCompleted: 0, StatusSkipped: 0, StatusModified: 0}
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err = rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}

// saveDefinitions writes the name and definition of each workout in one transaction and marks them modified.
func (r *sqliteRepository) saveDefinitions(
	ctx context.Context, athleteID int, workouts []Workout, reason, by string,
) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error { //nolint:wrapcheck // WithTx wraps.
		for _, w := range workouts {
			definition, err := MarshalDefinition(w.Definition)
			if err != nil {
				return err
			}
			result, err := tx.ExecContext(ctx, `
				UPDATE scheduled_workouts
				SET name                = ?,
				    definition          = ?,
				    status              = CASE WHEN status = 'scheduled' THEN 'modified' ELSE status END,
				    modification_reason = ?,
				    modified_by         = ?
				WHERE id = ? AND athlete_id = ?`,
				w.Name, definition, reason, by, w.ID, athleteID)
			if err != nil {
				return fmt.Errorf("update workout %d: %w", w.ID, err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if affected == 0 {
				return fmt.Errorf("workout %d: %w", w.ID, ErrNotFound)
			}
		}
		return nil
	})
}
