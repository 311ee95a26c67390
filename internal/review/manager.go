// Package review is the plan manager. It stores one daily review per athlete and day, drives the approval state
// machine of the proposed modifications, applies approved modifications to the plan, and keeps the audit trail.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/fitcoach/internal/advisor"
	"github.com/myrjola/fitcoach/internal/calendar"
	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/logging"
	"github.com/myrjola/fitcoach/internal/plan"
	"github.com/myrjola/fitcoach/internal/sqlite"
	"github.com/myrjola/fitcoach/internal/wellness"
)

const (
	// DefaultAutoApplyConfidence is the evaluation confidence from which high priority modifications are applied
	// without approval.
	DefaultAutoApplyConfidence = 0.7
	// RetentionDays is how long unapproved reviews are kept.
	RetentionDays = 1

	modifiedByReview = "review"
	modifiedByAuto   = "auto"
)

// Config tunes the manager.
type Config struct {
	AutoApplyConfidence float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{AutoApplyConfidence: DefaultAutoApplyConfidence}
}

// Manager orchestrates evaluations and plan modifications.
type Manager struct {
	repo      *sqliteRepository
	scheduler *plan.Scheduler
	goals     *goal.Service
	wellness  *wellness.Service
	evaluator advisor.Evaluator
	calendar  calendar.Syncer
	cfg       Config
	logger    *slog.Logger
}

// NewManager creates a plan manager.
func NewManager(
	db *sqlite.Database,
	scheduler *plan.Scheduler,
	goals *goal.Service,
	wellnessService *wellness.Service,
	evaluator advisor.Evaluator,
	syncer calendar.Syncer,
	cfg Config,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		repo:      newSQLiteRepository(db, logger),
		scheduler: scheduler,
		goals:     goals,
		wellness:  wellnessService,
		evaluator: evaluator,
		calendar:  syncer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Get returns a review of the athlete.
func (m *Manager) Get(ctx context.Context, athleteID, reviewID int) (DailyReview, error) {
	return m.repo.getReview(ctx, athleteID, reviewID)
}

// Latest returns the most recent review of the athlete.
func (m *Manager) Latest(ctx context.Context, athleteID int) (DailyReview, error) {
	return m.repo.latestReview(ctx, athleteID)
}

// Adjustments returns the most recent audit rows of the athlete.
func (m *Manager) Adjustments(ctx context.Context, athleteID, limit int) ([]PlanAdjustment, error) {
	return m.repo.listAdjustments(ctx, athleteID, limit)
}

// Evaluate asks the evaluator to review the athlete's training and stores the outcome as the review of the day.
// Evaluator failures are recorded as an error-status review and reported in the result. High priority
// modifications are applied immediately when the evaluation confidence reaches the configured threshold.
func (m *Manager) Evaluate(
	ctx context.Context, athleteID int, evaluationType EvaluationType, userContext string, now time.Time,
) (EvaluationResult, error) {
	ctx = logging.WithAttrs(ctx, slog.String("evaluation_id", uuid.NewString()), slog.Int("athlete_id", athleteID),
		slog.String("evaluation_type", string(evaluationType)))
	review := DailyReview{ //nolint:exhaustruct // ids and timestamps are assigned by the database.
		AthleteID:      athleteID,
		Date:           now,
		EvaluationType: evaluationType,
		UserContext:    userContext,
	}

	evaluation, payload, err := m.evaluate(ctx, athleteID, userContext, now)
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "evaluation failed", slog.Any("error", err))
		review.Status = StatusError
		review.ErrorMessage = err.Error()
		review.Assessment = Assessment{Overall: advisor.AssessmentUnknown} //nolint:exhaustruct // nothing else known.
		review.Modifications = []ProposedModification{}
		// The evaluator may have failed because ctx was cancelled. The error review is stored regardless.
		stored, storeErr := m.repo.upsertReview(context.WithoutCancel(ctx), review)
		if storeErr != nil {
			return EvaluationResult{}, fmt.Errorf("store error review: %w", errors.Join(err, storeErr))
		}
		return EvaluationResult{Review: stored, Errors: []string{err.Error()}}, nil //nolint:exhaustruct // no counts.
	}

	review.Assessment = Assessment{
		Overall:       evaluation.Assessment,
		Confidence:    evaluation.Confidence,
		NextWeekFocus: evaluation.NextWeekFocus,
		Warnings:      evaluation.Warnings,
	}
	review.Insights = evaluation.ProgressSummary
	review.Recommendations = recommendationsMarkdown(evaluation, payload)
	review.Modifications = make([]ProposedModification, 0, len(evaluation.Modifications))
	for _, mod := range evaluation.Modifications {
		review.Modifications = append(review.Modifications, ProposedModification{ //nolint:exhaustruct // pending.
			Modification: mod,
			Status:       ItemPending,
		})
	}
	review.Status = AggregateStatus(review.Modifications)

	stored, err := m.repo.upsertReview(ctx, review)
	if err != nil {
		return EvaluationResult{}, err
	}
	result := EvaluationResult{
		Review:            stored,
		ModificationCount: len(stored.Modifications),
		AutoApplied:       0,
		Errors:            []string{},
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "stored review", slog.Int("review_id", stored.ID),
		slog.String("assessment", string(evaluation.Assessment)), slog.Float64("confidence", evaluation.Confidence),
		slog.Int("modifications", result.ModificationCount))

	if evaluation.Confidence < m.cfg.AutoApplyConfidence {
		return result, nil
	}
	for i, mod := range stored.Modifications {
		if mod.Priority != advisor.PriorityHigh {
			continue
		}
		action, actionErr := m.act(ctx, athleteID, stored.ID, i, ActionApprove, modifiedByAuto, now)
		if actionErr != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "auto-apply failed", slog.Int("index", i),
				slog.Any("error", actionErr))
			result.Errors = append(result.Errors, fmt.Sprintf("auto-apply modification %d: %v", i, actionErr))
			continue
		}
		result.Review = action.Review
		result.AutoApplied++
		if action.Sync != nil && action.Sync.Error != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("sync modification %d: %s", i, action.Sync.Error))
		}
	}
	return result, nil
}

func (m *Manager) evaluate(
	ctx context.Context, athleteID int, userContext string, now time.Time,
) (advisor.Evaluation, advisor.Payload, error) {
	payload, err := m.BuildPayload(ctx, athleteID, now, userContext)
	if err != nil {
		return advisor.Evaluation{}, advisor.Payload{}, fmt.Errorf("build payload: %w", err)
	}
	evaluation, err := m.evaluator.Evaluate(ctx, payload)
	if err != nil {
		return advisor.Evaluation{}, advisor.Payload{}, fmt.Errorf("evaluate: %w", err)
	}
	return evaluation, payload, nil
}

func recommendationsMarkdown(evaluation advisor.Evaluation, payload advisor.Payload) string {
	var b strings.Builder
	if evaluation.NextWeekFocus != "" {
		fmt.Fprintf(&b, "**Next week:** %s\n\n", evaluation.NextWeekFocus)
	}
	for _, r := range payload.Recommendations {
		fmt.Fprintf(&b, "- *%s* %s: %s\n", r.Priority, r.Area, r.Text)
	}
	for _, w := range evaluation.Warnings {
		fmt.Fprintf(&b, "- **Warning:** %s\n", w)
	}
	return strings.TrimSpace(b.String())
}

// Approve applies the modification at index to the plan and records it in the audit trail. The calendar entry of
// a rescheduled workout is recreated afterwards; a failed sync is reported in the result and does not undo the
// change.
func (m *Manager) Approve(ctx context.Context, athleteID, reviewID, index int, now time.Time) (ActionResult, error) {
	return m.act(ctx, athleteID, reviewID, index, ActionApprove, modifiedByReview, now)
}

// Reject declines the modification at index.
func (m *Manager) Reject(ctx context.Context, athleteID, reviewID, index int, now time.Time) (ActionResult, error) {
	return m.act(ctx, athleteID, reviewID, index, ActionReject, modifiedByReview, now)
}

// Act dispatches to Approve or Reject.
func (m *Manager) Act(
	ctx context.Context, athleteID, reviewID, index int, action Action, now time.Time,
) (ActionResult, error) {
	switch action {
	case ActionApprove, ActionReject:
		return m.act(ctx, athleteID, reviewID, index, action, modifiedByReview, now)
	default:
		return ActionResult{}, fmt.Errorf("%w: unknown action %q", ErrInvalidState, action)
	}
}

func pendingItem(review DailyReview, index int) (ProposedModification, error) {
	if index < 0 || index >= len(review.Modifications) {
		return ProposedModification{}, fmt.Errorf("%w: review %d has no modification %d", ErrInvalidState,
			review.ID, index)
	}
	item := review.Modifications[index]
	if item.Status != ItemPending {
		return ProposedModification{}, fmt.Errorf("%w: modification %d is already %s", ErrInvalidState, index,
			item.Status)
	}
	return item, nil
}

func (m *Manager) act(
	ctx context.Context, athleteID, reviewID, index int, action Action, by string, now time.Time,
) (ActionResult, error) {
	review, err := m.repo.getReview(ctx, athleteID, reviewID)
	if err != nil {
		return ActionResult{}, err
	}
	item, err := pendingItem(review, index)
	if err != nil {
		return ActionResult{}, err
	}

	var (
		result  ActionResult
		applied appliedChange
	)
	if action == ActionApprove {
		if applied, err = m.apply(ctx, athleteID, item.Modification, by); err != nil {
			return ActionResult{}, err
		}
	}

	actionedAt := now.UTC()
	result.Review, result.Adjustment, err = m.repo.updateReview(ctx, athleteID, reviewID,
		func(r *DailyReview) (*PlanAdjustment, error) {
			if _, itemErr := pendingItem(*r, index); itemErr != nil {
				return nil, itemErr
			}
			r.Modifications[index].ActionedAt = &actionedAt
			if action == ActionReject {
				r.Modifications[index].Status = ItemRejected
				return nil, nil //nolint:nilnil // rejections are not audited.
			}
			r.Modifications[index].Status = ItemApproved
			r.Modifications[index].AutoApplied = by == modifiedByAuto
			change, marshalErr := json.Marshal(applied.snapshot(item.Modification))
			if marshalErr != nil {
				return nil, fmt.Errorf("marshal change snapshot: %w", marshalErr)
			}
			reason := item.Reason
			if reason == "" {
				reason = item.Description
			}
			return &PlanAdjustment{ //nolint:exhaustruct // id and created_at are assigned by the database.
				AthleteID: athleteID,
				ReviewID:  &r.ID,
				Date:      now,
				Type:      item.Type,
				Reasoning: reason,
				Change:    change,
			}, nil
		})
	if err != nil {
		return ActionResult{}, fmt.Errorf("%s modification %d of review %d: %w", action, index, reviewID, err)
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "actioned modification", slog.Int("athlete_id", athleteID),
		slog.Int("review_id", reviewID), slog.Int("index", index), slog.String("action", string(action)),
		slog.String("modified_by", by), slog.String("review_status", string(result.Review.Status)))

	if action == ActionApprove && item.Type == advisor.ModificationReschedule {
		result.Sync = m.resync(ctx, applied.before, applied.after, now)
	}
	return result, nil
}

// appliedChange is the workout before and after a modification.
type appliedChange struct {
	before plan.Workout
	after  plan.Workout
}

type workoutState struct {
	ID          int         `json:"id"`
	Date        string      `json:"date"`
	WorkoutType string      `json:"workout_type"`
	Name        string      `json:"name"`
	Status      plan.Status `json:"status"`
}

func stateOf(w plan.Workout) workoutState {
	return workoutState{
		ID:          w.ID,
		Date:        w.Date.Format(time.DateOnly),
		WorkoutType: w.WorkoutType,
		Name:        w.Name,
		Status:      w.Status,
	}
}

func (c appliedChange) snapshot(mod advisor.Modification) map[string]any {
	return map[string]any{
		"modification": mod,
		"before":       stateOf(c.before),
		"after":        stateOf(c.after),
	}
}

// targetDate resolves the workout date of a modification from its date or its plan week and day.
func (m *Manager) targetDate(ctx context.Context, athleteID int, mod advisor.Modification) (time.Time, error) {
	if mod.Date != "" {
		date, err := plan.ParseDate(mod.Date)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		return date, nil
	}
	md, err := m.scheduler.Metadata(ctx, athleteID)
	if err != nil {
		return time.Time{}, fmt.Errorf("get plan metadata: %w", err)
	}
	if mod.Week < 1 || mod.Week > md.TotalWeeks || mod.Day < 1 || mod.Day > 7 {
		return time.Time{}, fmt.Errorf("%w: week %d day %d is outside the plan", ErrInvalidState, mod.Week, mod.Day)
	}
	return md.StartDate.AddDate(0, 0, (mod.Week-1)*7+mod.Day-1), nil //nolint:mnd // days per week.
}

func (m *Manager) apply(
	ctx context.Context, athleteID int, mod advisor.Modification, by string,
) (appliedChange, error) {
	date, err := m.targetDate(ctx, athleteID, mod)
	if err != nil {
		return appliedChange{}, err
	}
	before, err := m.scheduler.Get(ctx, athleteID, date, mod.WorkoutType)
	if err != nil {
		return appliedChange{}, fmt.Errorf("get workout: %w", err)
	}
	reason := mod.Reason
	if reason == "" {
		reason = mod.Description
	}

	var after plan.Workout
	switch mod.Type {
	case advisor.ModificationIntensity, advisor.ModificationVolume:
		after, err = m.scheduler.ModifyWorkout(ctx, athleteID, date, mod.WorkoutType, patchFor(mod), reason, by)
	case advisor.ModificationAddRest, advisor.ModificationSkip:
		after, err = m.scheduler.MarkSkipped(ctx, athleteID, date, mod.WorkoutType, reason, by)
	case advisor.ModificationReschedule:
		var newDate time.Time
		if newDate, err = plan.ParseDate(mod.NewDate); err != nil {
			return appliedChange{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		after, err = m.scheduler.Reschedule(ctx, athleteID, date, mod.WorkoutType, newDate, reason, by)
	case advisor.ModificationSwapWorkout:
		after, err = m.scheduler.SwapWorkout(ctx, athleteID, date, mod.WorkoutType, mod.NewWorkoutType, reason, by)
	default:
		return appliedChange{}, fmt.Errorf("%w: unknown modification type %q", ErrInvalidState, mod.Type)
	}
	if err != nil {
		return appliedChange{}, fmt.Errorf("apply %s: %w", mod.Type, err)
	}
	return appliedChange{before: before, after: after}, nil
}

func patchFor(mod advisor.Modification) plan.Patch {
	patch := plan.Patch{ //nolint:exhaustruct // only the modifiers change.
		IntensityModifier: mod.IntensityModifier,
		VolumeModifier:    mod.VolumeModifier,
	}
	if mod.Description != "" {
		patch.Annotations = map[string]string{string(mod.Type): mod.Description}
	}
	return patch
}

// resync replaces the calendar event of a moved workout. Workouts that were never synced are left alone.
func (m *Manager) resync(ctx context.Context, before, after plan.Workout, now time.Time) *SyncResult {
	if before.ExternalSyncID == "" {
		return nil
	}
	result := &SyncResult{Attempted: true} //nolint:exhaustruct // filled below.
	fail := func(err error) *SyncResult {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "calendar sync failed", slog.Int("workout_id", after.ID),
			slog.Any("error", err))
		result.Error = err.Error()
		return result
	}
	if err := m.calendar.Delete(ctx, before.ExternalSyncID); err != nil {
		return fail(err)
	}
	if err := m.scheduler.SetExternalSync(ctx, after.AthleteID, after.ID, "", now); err != nil {
		return fail(err)
	}
	eventID, err := m.calendar.Push(ctx, after)
	if err != nil {
		return fail(err)
	}
	if err = m.scheduler.SetExternalSync(ctx, after.AthleteID, after.ID, eventID, now); err != nil {
		return fail(err)
	}
	result.EventID = eventID
	return result
}

// SyncUpcoming pushes the workouts of the next days that have no calendar event yet. It stops at the first failure
// and returns how many workouts were synced.
func (m *Manager) SyncUpcoming(ctx context.Context, athleteID int, now time.Time, days int) (int, error) {
	workouts, err := m.scheduler.ListRange(ctx, athleteID, now, now.AddDate(0, 0, days-1))
	if err != nil {
		return 0, fmt.Errorf("list upcoming workouts: %w", err)
	}
	synced := 0
	for _, w := range workouts {
		if w.ExternalSyncID != "" || w.Status.Terminal() {
			continue
		}
		eventID, pushErr := m.calendar.Push(ctx, w)
		if pushErr != nil {
			return synced, fmt.Errorf("push workout %d: %w", w.ID, pushErr)
		}
		if err = m.scheduler.SetExternalSync(ctx, athleteID, w.ID, eventID, now); err != nil {
			return synced, fmt.Errorf("record sync of workout %d: %w", w.ID, err)
		}
		synced++
	}
	return synced, nil
}

// Sweep deletes unapproved reviews older than the retention period and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -RetentionDays)
	deleted, err := m.repo.deleteStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "swept stale reviews", slog.Int("deleted", deleted),
		slog.String("cutoff", cutoff.Format(time.DateOnly)))
	return deleted, nil
}
