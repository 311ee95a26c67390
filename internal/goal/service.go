package goal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/myrjola/fitcoach/internal/sqlite"
)

// Service stores goals and metrics and analyses goal progress.
type Service struct {
	repo   *sqliteRepository
	logger *slog.Logger
}

// NewService creates a new goal service.
func NewService(db *sqlite.Database, logger *slog.Logger) *Service {
	return &Service{
		repo:   newSQLiteRepository(db, logger),
		logger: logger,
	}
}

// CreateGoal stores a new goal. Status defaults to active and priority to 1.
func (s *Service) CreateGoal(ctx context.Context, g Goal) (Goal, error) {
	if g.Status == "" {
		g.Status = StatusActive
	}
	if g.Priority == 0 {
		g.Priority = 1
	}
	if err := g.validate(); err != nil {
		return Goal{}, err
	}
	created, err := s.repo.insertGoal(ctx, g)
	if err != nil {
		return Goal{}, fmt.Errorf("create goal: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "created goal",
		slog.Int("athlete_id", g.AthleteID), slog.Int("goal_id", created.ID), slog.String("metric_type", g.MetricType))
	return created, nil
}

// Get returns a goal of the athlete.
func (s *Service) Get(ctx context.Context, athleteID, goalID int) (Goal, error) {
	g, err := s.repo.getGoal(ctx, athleteID, goalID)
	if err != nil {
		return Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

// ActiveGoals lists the active goals of the athlete by priority.
func (s *Service) ActiveGoals(ctx context.Context, athleteID int) ([]Goal, error) {
	goals, err := s.repo.listGoals(ctx, athleteID, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active goals: %w", err)
	}
	return goals, nil
}

// RecordMetric stores an observation.
func (s *Service) RecordMetric(ctx context.Context, m Metric) (Metric, error) {
	switch {
	case m.MetricType == "":
		return Metric{}, fmt.Errorf("%w: metric type is required", ErrInvalidMetric)
	case m.Date.IsZero():
		return Metric{}, fmt.Errorf("%w: date is required", ErrInvalidMetric)
	case m.Value != nil && (math.IsNaN(*m.Value) || math.IsInf(*m.Value, 0)):
		return Metric{}, fmt.Errorf("%w: value must be finite", ErrInvalidMetric)
	case m.Value == nil && m.TextValue == nil && len(m.JSONValue) == 0:
		return Metric{}, fmt.Errorf("%w: a value is required", ErrInvalidMetric)
	}
	recorded, err := s.repo.insertMetric(ctx, m)
	if err != nil {
		return Metric{}, fmt.Errorf("record metric: %w", err)
	}
	return recorded, nil
}

// History returns up to limit observations of metricType, newest first.
func (s *Service) History(ctx context.Context, athleteID int, metricType string, limit int) ([]Metric, error) {
	metrics, err := s.repo.listMetrics(ctx, athleteID, metricType, limit, false)
	if err != nil {
		return nil, fmt.Errorf("list metric history: %w", err)
	}
	return metrics, nil
}

// AnalyzeGoal analyses one goal.
func (s *Service) AnalyzeGoal(ctx context.Context, athleteID, goalID int, now time.Time) (Progress, error) {
	g, err := s.repo.getGoal(ctx, athleteID, goalID)
	if err != nil {
		return Progress{}, fmt.Errorf("get goal: %w", err)
	}
	return s.analyze(ctx, g, now)
}

// AnalyzeAll analyses every active goal of the athlete.
func (s *Service) AnalyzeAll(ctx context.Context, athleteID int, now time.Time) ([]Progress, error) {
	goals, err := s.ActiveGoals(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	progress := make([]Progress, 0, len(goals))
	for _, g := range goals {
		var p Progress
		if p, err = s.analyze(ctx, g, now); err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	return progress, nil
}

func (s *Service) analyze(ctx context.Context, g Goal, now time.Time) (Progress, error) {
	history, err := s.repo.listMetrics(ctx, g.AthleteID, g.MetricType, MaxHistory, true)
	if err != nil {
		return Progress{}, fmt.Errorf("list metrics for goal %d: %w", g.ID, err)
	}
	return Analyze(g, history, now), nil
}

// MarkAchieved flips active goals that reached their target to achieved and returns them.
//
// Maintain goals are ongoing and never marked achieved.
func (s *Service) MarkAchieved(ctx context.Context, athleteID int, now time.Time) ([]Goal, error) {
	progress, err := s.AnalyzeAll(ctx, athleteID, now)
	if err != nil {
		return nil, err
	}
	var achieved []Goal
	for _, p := range progress {
		if p.Status != ProgressTargetReached || p.Goal.Direction == DirectionMaintain {
			continue
		}
		var updatedGoal Goal
		if err = s.repo.updateGoal(ctx, athleteID, p.Goal.ID, func(g *Goal) (bool, error) {
			if g.Status != StatusActive {
				return false, nil
			}
			g.Status = StatusAchieved
			updatedGoal = *g
			return true, nil
		}); err != nil {
			return nil, fmt.Errorf("mark goal %d achieved: %w", p.Goal.ID, err)
		}
		if updatedGoal.ID == 0 {
			continue
		}
		s.logger.LogAttrs(ctx, slog.LevelInfo, "goal achieved",
			slog.Int("athlete_id", athleteID), slog.Int("goal_id", updatedGoal.ID))
		achieved = append(achieved, updatedGoal)
	}
	return achieved, nil
}
