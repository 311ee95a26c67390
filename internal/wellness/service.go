package wellness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/sqlite"
)

// SummaryDays is the window of the activity summary fed to the recommendation engine.
const SummaryDays = 14

// AverageDays is the window of the wellness averages fed to the advisor.
const AverageDays = 7

// MetricRecorder stores goal metrics derived from wellness readings.
type MetricRecorder interface {
	RecordMetric(ctx context.Context, m goal.Metric) (goal.Metric, error)
}

// Service imports wellness data and aggregates it.
type Service struct {
	repo     *sqliteRepository
	provider Provider
	metrics  MetricRecorder
	logger   *slog.Logger
}

// NewService creates a new wellness service.
func NewService(db *sqlite.Database, provider Provider, metrics MetricRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:     newSQLiteRepository(db, logger),
		provider: provider,
		metrics:  metrics,
		logger:   logger,
	}
}

// ImportResult reports what an import stored.
type ImportResult struct {
	Snapshot   Snapshot `json:"snapshot"`
	Inserted   int      `json:"inserted"`
	Duplicates int      `json:"duplicates"`
}

// Import fetches the day from the provider, upserts the snapshot, and stores new activities.
func (s *Service) Import(ctx context.Context, athleteID int, date time.Time) (ImportResult, error) {
	daily, err := s.provider.Fetch(ctx, athleteID, date)
	if err != nil {
		return ImportResult{}, fmt.Errorf("fetch wellness: %w", err)
	}
	daily.Snapshot.AthleteID = athleteID
	daily.Snapshot.Date = date
	return s.store(ctx, athleteID, daily)
}

func (s *Service) store(ctx context.Context, athleteID int, daily Daily) (ImportResult, error) {
	previousVO2, err := s.repo.upsertSnapshot(ctx, daily.Snapshot)
	if err != nil {
		return ImportResult{}, fmt.Errorf("store snapshot: %w", err)
	}
	if v := daily.Snapshot.VO2Max; v != nil && (previousVO2 == nil || *previousVO2 != *v) {
		if _, err = s.metrics.RecordMetric(ctx, goal.Metric{
			AthleteID:  athleteID,
			Date:       daily.Snapshot.Date,
			MetricType: "vo2_max",
			Value:      v,
			Method:     "wearable_estimate",
		}); err != nil {
			return ImportResult{}, fmt.Errorf("record vo2_max: %w", err)
		}
	}

	result := ImportResult{Snapshot: daily.Snapshot}
	for _, a := range daily.Activities {
		a.AthleteID = athleteID
		inserted, insertErr := s.insert(ctx, a)
		if insertErr != nil {
			return ImportResult{}, insertErr
		}
		if inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "imported wellness",
		slog.Int("athlete_id", athleteID),
		slog.String("date", daily.Snapshot.Date.Format(dateFormat)),
		slog.Int("inserted", result.Inserted),
		slog.Int("duplicates", result.Duplicates))
	return result, nil
}

func (s *Service) insert(ctx context.Context, a Activity) (bool, error) {
	if a.Source == "" || a.ExternalID == "" || a.Date.IsZero() {
		return false, fmt.Errorf("%w: source, external id, and date are required", ErrInvalidActivity)
	}
	if a.Type == "" {
		a.Type = TypeOther
	}
	inserted, err := s.repo.insertActivity(ctx, a)
	if err != nil {
		return false, fmt.Errorf("store activity %s/%s: %w", a.Source, a.ExternalID, err)
	}
	return inserted, nil
}

// ImportStrength stores strength-log sessions as strength activities. The volume is computed from the sets.
func (s *Service) ImportStrength(ctx context.Context, athleteID int, sessions []StrengthSession) (ImportResult, error) {
	var result ImportResult
	for _, session := range sessions {
		volume := session.Volume()
		inserted, err := s.insert(ctx, Activity{
			AthleteID:       athleteID,
			Source:          SourceStrength,
			ExternalID:      session.ExternalID,
			Type:            TypeStrength,
			Name:            strings.TrimSpace(session.Name),
			Date:            session.Date,
			DurationMinutes: session.DurationMinutes,
			VolumeKg:        &volume,
		})
		if err != nil {
			return ImportResult{}, err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "imported strength sessions",
		slog.Int("athlete_id", athleteID), slog.Int("inserted", result.Inserted), slog.Int("duplicates", result.Duplicates))
	return result, nil
}

// ImportFIT stores the activity of a FIT file. It reports whether the activity was new.
func (s *Service) ImportFIT(ctx context.Context, athleteID int, r io.Reader, externalID string) (Activity, bool, error) {
	a, err := DecodeFIT(r, externalID)
	if err != nil {
		return Activity{}, false, err
	}
	a.AthleteID = athleteID
	inserted, err := s.insert(ctx, a)
	if err != nil {
		return Activity{}, false, err
	}
	return a, inserted, nil
}

// Activities lists activities dated within the days ending on now.
func (s *Service) Activities(ctx context.Context, athleteID int, now time.Time, days int) ([]Activity, error) {
	from, to := window(now, days)
	activities, err := s.repo.listActivities(ctx, athleteID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// Summary aggregates the activities of the days ending on now.
func (s *Service) Summary(ctx context.Context, athleteID int, now time.Time, days int) (ActivitySummary, error) {
	activities, err := s.Activities(ctx, athleteID, now, days)
	if err != nil {
		return ActivitySummary{}, err
	}
	return Summarize(activities, days), nil
}

// Summarize aggregates activities into counts by type and total minutes.
func Summarize(activities []Activity, days int) ActivitySummary {
	summary := ActivitySummary{Days: days, CountsByType: make(map[string]int)}
	for _, a := range activities {
		summary.CountsByType[a.Type]++
		summary.TotalMinutes += a.DurationMinutes
		switch {
		case IsCardio(a.Type):
			summary.CardioSessions++
		case a.Type == TypeStrength:
			summary.StrengthSessions++
		}
	}
	return summary
}

// Latest returns the newest snapshot on or before now, or nil when there is none.
func (s *Service) Latest(ctx context.Context, athleteID int, now time.Time) (*Snapshot, error) {
	snapshot, err := s.repo.latestSnapshot(ctx, athleteID, now)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snapshot, nil
}

// WeeklyAverages returns the mean readings of the AverageDays ending on now.
func (s *Service) WeeklyAverages(ctx context.Context, athleteID int, now time.Time) (Averages, error) {
	from, to := window(now, AverageDays)
	averages, err := s.repo.averages(ctx, athleteID, from, to)
	if err != nil {
		return Averages{}, fmt.Errorf("weekly averages: %w", err)
	}
	averages.Days = AverageDays
	return averages, nil
}

// window returns the first and last date of the days ending on now, both inclusive.
func window(now time.Time, days int) (time.Time, time.Time) {
	if days < 1 {
		days = 1
	}
	return now.AddDate(0, 0, -(days - 1)), now
}
