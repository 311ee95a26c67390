package review

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

const reviewColumns = `id, athlete_id, review_date, evaluation_type, assessment, insights, recommendations,
       proposed_modifications, approval_status, user_context, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanReview(row scanner) (DailyReview, error) {
	var (
		r                                                 DailyReview
		date, assessment, modifications, created, updated string
		err                                               error
	)
	if err = row.Scan(&r.ID, &r.AthleteID, &date, &r.EvaluationType, &assessment, &r.Insights, &r.Recommendations,
		&modifications, &r.Status, &r.UserContext, &r.ErrorMessage, &created, &updated); err != nil {
		return DailyReview{}, err //nolint:wrapcheck // callers wrap with context.
	}
	if r.Date, err = time.Parse(dateFormat, date); err != nil {
		return DailyReview{}, fmt.Errorf("parse review_date: %w", err)
	}
	if err = json.Unmarshal([]byte(assessment), &r.Assessment); err != nil {
		return DailyReview{}, fmt.Errorf("unmarshal assessment: %w", err)
	}
	if err = json.Unmarshal([]byte(modifications), &r.Modifications); err != nil {
		return DailyReview{}, fmt.Errorf("unmarshal proposed_modifications: %w", err)
	}
	if r.Modifications == nil {
		r.Modifications = []ProposedModification{}
	}
	if r.CreatedAt, err = time.Parse(timestampFormat, created); err != nil {
		return DailyReview{}, fmt.Errorf("parse created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(timestampFormat, updated); err != nil {
		return DailyReview{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return r, nil
}

func marshalReview(r DailyReview) (string, string, error) {
	assessment, err := json.Marshal(r.Assessment)
	if err != nil {
		return "", "", fmt.Errorf("marshal assessment: %w", err)
	}
	modifications := r.Modifications
	if modifications == nil {
		modifications = []ProposedModification{}
	}
	proposed, err := json.Marshal(modifications)
	if err != nil {
		return "", "", fmt.Errorf("marshal proposed modifications: %w", err)
	}
	return string(assessment), string(proposed), nil
}

// upsertReview stores the review of (athlete, date). An existing review of the day is overwritten in place and
// keeps its id.
func (r *sqliteRepository) upsertReview(ctx context.Context, review DailyReview) (DailyReview, error) {
	assessment, proposed, err := marshalReview(review)
	if err != nil {
		return DailyReview{}, err
	}
	stored, err := scanReview(r.db.ReadWrite.QueryRowContext(ctx, `
		INSERT INTO daily_reviews (athlete_id, review_date, evaluation_type, assessment, insights, recommendations,
		                           proposed_modifications, approval_status, user_context, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (athlete_id, review_date) DO UPDATE SET
			evaluation_type        = excluded.evaluation_type,
			assessment             = excluded.assessment,
			insights               = excluded.insights,
			recommendations        = excluded.recommendations,
			proposed_modifications = excluded.proposed_modifications,
			approval_status        = excluded.approval_status,
			user_context           = excluded.user_context,
			error_message          = excluded.error_message,
			updated_at             = STRFTIME('%Y-%m-%dT%H:%M:%fZ')
		RETURNING `+reviewColumns,
		review.AthleteID, review.Date.Format(dateFormat), review.EvaluationType, assessment, review.Insights,
		review.Recommendations, proposed, review.Status, review.UserContext, review.ErrorMessage))
	if err != nil {
		return DailyReview{}, fmt.Errorf("upsert review: %w", err)
	}
	return stored, nil
}

func (r *sqliteRepository) getReview(ctx context.Context, athleteID, reviewID int) (DailyReview, error) {
	review, err := scanReview(r.db.ReadOnly.QueryRowContext(ctx, `SELECT `+reviewColumns+`
		FROM daily_reviews WHERE athlete_id = ? AND id = ?`, athleteID, reviewID))
	if errors.Is(err, sql.ErrNoRows) {
		return DailyReview{}, ErrNotFound
	}
	if err != nil {
		return DailyReview{}, fmt.Errorf("query review: %w", err)
	}
	return review, nil
}

func (r *sqliteRepository) latestReview(ctx context.Context, athleteID int) (DailyReview, error) {
	review, err := scanReview(r.db.ReadOnly.QueryRowContext(ctx, `SELECT `+reviewColumns+`
		FROM daily_reviews WHERE athlete_id = ? ORDER BY review_date DESC LIMIT 1`, athleteID))
	if errors.Is(err, sql.ErrNoRows) {
		return DailyReview{}, ErrNotFound
	}
	if err != nil {
		return DailyReview{}, fmt.Errorf("query latest review: %w", err)
	}
	return review, nil
}

// updateReview loads the review, lets updateFn change it, and writes the modifications and the aggregate status
// back. The adjustment returned by updateFn is inserted in the same transaction.
func (r *sqliteRepository) updateReview(
	ctx context.Context, athleteID, reviewID int, updateFn func(review *DailyReview) (*PlanAdjustment, error),
) (DailyReview, *PlanAdjustment, error) {
	var (
		updated    DailyReview
		adjustment *PlanAdjustment
	)
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		review, err := scanReview(tx.QueryRowContext(ctx, `SELECT `+reviewColumns+`
			FROM daily_reviews WHERE athlete_id = ? AND id = ?`, athleteID, reviewID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("query review: %w", err)
		}
		if adjustment, err = updateFn(&review); err != nil {
			return err
		}
		review.Status = AggregateStatus(review.Modifications)
		assessment, proposed, err := marshalReview(review)
		if err != nil {
			return err
		}
		var updatedAt string
		if err = tx.QueryRowContext(ctx, `
			UPDATE daily_reviews
			SET assessment             = ?,
			    proposed_modifications = ?,
			    approval_status        = ?,
			    updated_at             = STRFTIME('%Y-%m-%dT%H:%M:%fZ')
			WHERE id = ?
			RETURNING updated_at`, assessment, proposed, review.Status, review.ID).Scan(&updatedAt); err != nil {
			return fmt.Errorf("update review %d: %w", review.ID, err)
		}
		if review.UpdatedAt, err = time.Parse(timestampFormat, updatedAt); err != nil {
			return fmt.Errorf("parse updated_at: %w", err)
		}
		updated = review
		if adjustment == nil {
			return nil
		}
		return insertAdjustment(ctx, tx, adjustment)
	})
	if err != nil {
		return DailyReview{}, nil, err //nolint:wrapcheck // WithTx wraps.
	}
	return updated, adjustment, nil
}

func insertAdjustment(ctx context.Context, tx *sql.Tx, a *PlanAdjustment) error {
	var created string
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO plan_adjustments (athlete_id, review_id, adjustment_date, adjustment_type, reasoning,
		                              change_snapshot)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, created_at`,
		a.AthleteID, a.ReviewID, a.Date.Format(dateFormat), a.Type, a.Reasoning, string(a.Change),
	).Scan(&a.ID, &created); err != nil {
		return fmt.Errorf("insert plan adjustment: %w", err)
	}
	var err error
	if a.CreatedAt, err = time.Parse(timestampFormat, created); err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	return nil
}

// listAdjustments returns the athlete's audit trail, newest first.
func (r *sqliteRepository) listAdjustments(ctx context.Context, athleteID, limit int) (_ []PlanAdjustment, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT id, athlete_id, review_id, adjustment_date, adjustment_type, reasoning, change_snapshot, created_at
		FROM plan_adjustments
		WHERE athlete_id = ?
		ORDER BY id DESC
		LIMIT ?`, athleteID, limit)
	if err != nil {
		return nil, fmt.Errorf("query plan adjustments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var adjustments []PlanAdjustment
	for rows.Next() {
		var (
			a                     PlanAdjustment
			reviewID              sql.NullInt64
			date, change, created string
		)
		if err = rows.Scan(&a.ID, &a.AthleteID, &reviewID, &date, &a.Type, &a.Reasoning, &change,
			&created); err != nil {
			return nil, fmt.Errorf("scan plan adjustment: %w", err)
		}
		if reviewID.Valid {
			id := int(reviewID.Int64)
			a.ReviewID = &id
		}
		if a.Date, err = time.Parse(dateFormat, date); err != nil {
			return nil, fmt.Errorf("parse adjustment_date: %w", err)
		}
		if a.CreatedAt, err = time.Parse(timestampFormat, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		a.Change = json.RawMessage(change)
		adjustments = append(adjustments, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return adjustments, nil
}

// deleteStale removes reviews dated before cutoff unless they were approved.
func (r *sqliteRepository) deleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ReadWrite.ExecContext(ctx, `
		DELETE FROM daily_reviews WHERE review_date < ? AND approval_status <> 'approved'`,
		cutoff.Format(dateFormat))
	if err != nil {
		return 0, fmt.Errorf("delete stale reviews: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(deleted), nil
}
