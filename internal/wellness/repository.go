package wellness

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

const dateFormat = time.DateOnly

type sqliteRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newSQLiteRepository(db *sqlite.Database, logger *slog.Logger) *sqliteRepository {
	return &sqliteRepository{db: db, logger: logger}
}

func nullJSON(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

// upsertSnapshot stores the snapshot of the day and returns the VO2max estimate it replaced, if any.
func (r *sqliteRepository) upsertSnapshot(ctx context.Context, s Snapshot) (*float64, error) {
	var previous *float64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT vo2_max FROM wellness_snapshots WHERE athlete_id = ? AND snapshot_date = ?`,
			s.AthleteID, s.Date.Format(dateFormat)).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query previous snapshot: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO wellness_snapshots (athlete_id, snapshot_date, sleep_score, hrv, hrv_status, training_readiness,
			                                resting_hr, stress, body_battery_high, body_battery_low, steps, vo2_max,
			                                raw_payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (athlete_id, snapshot_date) DO UPDATE SET
				sleep_score        = excluded.sleep_score,
				hrv                = excluded.hrv,
				hrv_status         = excluded.hrv_status,
				training_readiness = excluded.training_readiness,
				resting_hr         = excluded.resting_hr,
				stress             = excluded.stress,
				body_battery_high  = excluded.body_battery_high,
				body_battery_low   = excluded.body_battery_low,
				steps              = excluded.steps,
				vo2_max            = excluded.vo2_max,
				raw_payload        = excluded.raw_payload`,
			s.AthleteID, s.Date.Format(dateFormat), s.SleepScore, s.HRV, s.HRVStatus, s.TrainingReadiness, s.RestingHR,
			s.Stress, s.BodyBatteryHigh, s.BodyBatteryLow, s.Steps, s.VO2Max, nullJSON(s.Raw)); err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // WithTx wraps.
	}
	return previous, nil
}

// latestSnapshot returns the newest snapshot on or before the given date.
func (r *sqliteRepository) latestSnapshot(ctx context.Context, athleteID int, onOrBefore time.Time) (*Snapshot, error) {
	var (
		s    = Snapshot{AthleteID: athleteID}
		date string
		raw  sql.NullString
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT snapshot_date, sleep_score, hrv, hrv_status, training_readiness, resting_hr, stress, body_battery_high,
		       body_battery_low, steps, vo2_max, raw_payload
		FROM wellness_snapshots
		WHERE athlete_id = ? AND snapshot_date <= ?
		ORDER BY snapshot_date DESC
		LIMIT 1`, athleteID, onOrBefore.Format(dateFormat)).Scan(&date, &s.SleepScore, &s.HRV, &s.HRVStatus,
		&s.TrainingReadiness, &s.RestingHR, &s.Stress, &s.BodyBatteryHigh, &s.BodyBatteryLow, &s.Steps, &s.VO2Max, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no snapshot yet.
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	if s.Date, err = time.Parse(dateFormat, date); err != nil {
		return nil, fmt.Errorf("parse snapshot_date: %w", err)
	}
	if raw.Valid {
		s.Raw = json.RawMessage(raw.String)
	}
	return &s, nil
}

// averages computes mean readings over snapshots dated within [from, to].
func (r *sqliteRepository) averages(ctx context.Context, athleteID int, from, to time.Time) (Averages, error) {
	var a Averages
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT AVG(sleep_score), AVG(hrv), AVG(training_readiness), AVG(resting_hr), AVG(stress), AVG(steps)
		FROM wellness_snapshots
		WHERE athlete_id = ? AND snapshot_date BETWEEN ? AND ?`,
		athleteID, from.Format(dateFormat), to.Format(dateFormat),
	).Scan(&a.SleepScore, &a.HRV, &a.TrainingReadiness, &a.RestingHR, &a.Stress, &a.Steps)
	if err != nil {
		return Averages{}, fmt.Errorf("query averages: %w", err)
	}
	return a, nil
}

// insertActivity stores the activity unless (athlete, source, external id) already exists. It reports whether a row
// was inserted.
func (r *sqliteRepository) insertActivity(ctx context.Context, a Activity) (bool, error) {
	result, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO activities (athlete_id, source, external_id, activity_type, name, activity_date, duration_minutes,
		                        distance_meters, volume_kg, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (athlete_id, source, external_id) DO NOTHING`,
		a.AthleteID, a.Source, a.ExternalID, a.Type, a.Name, a.Date.Format(dateFormat), a.DurationMinutes,
		a.DistanceMeters, a.VolumeKg, nullJSON(a.Raw))
	if err != nil {
		return false, fmt.Errorf("insert activity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// listActivities returns activities dated within [from, to] ordered by date.
func (r *sqliteRepository) listActivities(
	ctx context.Context, athleteID int, from, to time.Time,
) (_ []Activity, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT id, athlete_id, source, external_id, activity_type, name, activity_date, duration_minutes, distance_meters,
		       volume_kg
		FROM activities
		WHERE athlete_id = ? AND activity_date BETWEEN ? AND ?
		ORDER BY activity_date, id`, athleteID, from.Format(dateFormat), to.Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var activities []Activity
	for rows.Next() {
		var (
			a    Activity
			date string
		)
		if err = rows.Scan(&a.ID, &a.AthleteID, &a.Source, &a.ExternalID, &a.Type, &a.Name, &date, &a.DurationMinutes,
			&a.DistanceMeters, &a.VolumeKg); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if a.Date, err = time.Parse(dateFormat, date); err != nil {
			return nil, fmt.Errorf("parse activity_date: %w", err)
		}
		activities = append(activities, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return activities, nil
}
