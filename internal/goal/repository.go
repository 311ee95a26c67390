package goal

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

const goalColumns = `id, athlete_id, name, metric_type, target_value, baseline_value, baseline_date, direction,
       min_acceptable, max_acceptable, target_date, status, priority`

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(row scanner) (Goal, error) {
	var (
		g                        Goal
		baselineDate, targetDate sql.NullString
		err                      error
	)
	if err = row.Scan(&g.ID, &g.AthleteID, &g.Name, &g.MetricType, &g.Target, &g.Baseline, &baselineDate,
		&g.Direction, &g.MinAcceptable, &g.MaxAcceptable, &targetDate, &g.Status, &g.Priority); err != nil {
		return Goal{}, err //nolint:wrapcheck // callers wrap with context.
	}
	if g.BaselineDate, err = parseNullDate(baselineDate); err != nil {
		return Goal{}, fmt.Errorf("parse baseline_date: %w", err)
	}
	if g.TargetDate, err = parseNullDate(targetDate); err != nil {
		return Goal{}, fmt.Errorf("parse target_date: %w", err)
	}
	return g, nil
}

func (r *sqliteRepository) insertGoal(ctx context.Context, g Goal) (Goal, error) {
	row := r.db.ReadWrite.QueryRowContext(ctx, `
		INSERT INTO goals (athlete_id, name, metric_type, target_value, baseline_value, baseline_date, direction,
		                   min_acceptable, max_acceptable, target_date, status, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+goalColumns,
		g.AthleteID, g.Name, g.MetricType, g.Target, g.Baseline, formatNullDate(g.BaselineDate), g.Direction,
		g.MinAcceptable, g.MaxAcceptable, formatNullDate(g.TargetDate), g.Status, g.Priority)
	created, err := scanGoal(row)
	if err != nil {
		return Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	return created, nil
}

func (r *sqliteRepository) getGoal(ctx context.Context, athleteID, goalID int) (Goal, error) {
	row := r.db.ReadOnly.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE athlete_id = ? AND id = ?`, athleteID, goalID)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Goal{}, ErrNotFound
	}
	if err != nil {
		return Goal{}, fmt.Errorf("query goal %d: %w", goalID, err)
	}
	return g, nil
}

// listGoals returns the athlete's goals with the given status ordered by priority.
func (r *sqliteRepository) listGoals(ctx context.Context, athleteID int, status Status) (_ []Goal, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `SELECT `+goalColumns+`
		FROM goals
		WHERE athlete_id = ? AND status = ?
		ORDER BY priority, id`, athleteID, status)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var goals []Goal
	for rows.Next() {
		var g Goal
		if g, err = scanGoal(rows); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return goals, nil
}

// updateGoal loads the goal, lets updateFn modify it, and persists the status and priority when updateFn reports a
// change.
func (r *sqliteRepository) updateGoal(
	ctx context.Context, athleteID, goalID int, updateFn func(g *Goal) (bool, error),
) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error { //nolint:wrapcheck // WithTx wraps.
		g, err := scanGoal(tx.QueryRowContext(ctx,
			`SELECT `+goalColumns+` FROM goals WHERE athlete_id = ? AND id = ?`, athleteID, goalID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("query goal %d: %w", goalID, err)
		}
		updated, err := updateFn(&g)
		if err != nil {
			return err
		}
		if !updated {
			return nil
		}
		if _, err = tx.ExecContext(ctx, `UPDATE goals SET status = ?, priority = ? WHERE id = ?`,
			g.Status, g.Priority, g.ID); err != nil {
			return fmt.Errorf("update goal %d: %w", goalID, err)
		}
		return nil
	})
}

func (r *sqliteRepository) insertMetric(ctx context.Context, m Metric) (Metric, error) {
	var jsonValue *string
	if len(m.JSONValue) > 0 {
		s := string(m.JSONValue)
		jsonValue = &s
	}
	err := r.db.ReadWrite.QueryRowContext(ctx, `
		INSERT INTO metrics (athlete_id, measured_on, metric_type, value, text_value, json_value, method, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		m.AthleteID, m.Date.Format(dateFormat), m.MetricType, m.Value, m.TextValue, jsonValue, m.Method, m.Notes,
	).Scan(&m.ID)
	if err != nil {
		return Metric{}, fmt.Errorf("insert metric: %w", err)
	}
	return m, nil
}

// listMetrics returns the newest limit observations of a metric type, newest first. When numericOnly is set, rows
// without a numeric value are skipped.
func (r *sqliteRepository) listMetrics(
	ctx context.Context, athleteID int, metricType string, limit int, numericOnly bool,
) (_ []Metric, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT id, athlete_id, measured_on, metric_type, value, text_value, json_value, method, notes
		FROM metrics
		WHERE athlete_id = ? AND metric_type = ? AND (NOT ? OR value IS NOT NULL)
		ORDER BY measured_on DESC, id DESC
		LIMIT ?`, athleteID, metricType, numericOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var metrics []Metric
	for rows.Next() {
		var (
			m         Metric
			date      string
			jsonValue sql.NullString
		)
		if err = rows.Scan(&m.ID, &m.AthleteID, &date, &m.MetricType, &m.Value, &m.TextValue, &jsonValue,
			&m.Method, &m.Notes); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if m.Date, err = time.Parse(dateFormat, date); err != nil {
			return nil, fmt.Errorf("parse measured_on: %w", err)
		}
		if jsonValue.Valid {
			m.JSONValue = json.RawMessage(jsonValue.String)
		}
		metrics = append(metrics, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return metrics, nil
}

func parseNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil //nolint:nilnil // NULL date.
	}
	t, err := time.Parse(dateFormat, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	return &t, nil
}

func formatNullDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateFormat)
	return &s
}
