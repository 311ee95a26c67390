package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/myrjola/fitcoach/internal/advisor"
	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/plan"
	"github.com/myrjola/fitcoach/internal/recommend"
	"github.com/myrjola/fitcoach/internal/wellness"
)

const (
	recentDays   = 7
	upcomingDays = 7
)

// BuildPayload gathers what the evaluator needs: plan position, wellness averages, activity summary, recent and
// upcoming workouts, goal analyses, and the rule based recommendations and adjustment. The plan must be
// initialized.
func (m *Manager) BuildPayload(
	ctx context.Context, athleteID int, now time.Time, userNotes string,
) (advisor.Payload, error) {
	progress, err := m.scheduler.Progress(ctx, athleteID, now)
	if err != nil {
		return advisor.Payload{}, fmt.Errorf("plan progress: %w", err)
	}
	if !progress.Initialized {
		return advisor.Payload{}, plan.ErrNotInitialized
	}
	averages, err := m.wellness.WeeklyAverages(ctx, athleteID, now)
	if err != nil {
		return advisor.Payload{}, fmt.Errorf("wellness averages: %w", err)
	}
	summary, err := m.wellness.Summary(ctx, athleteID, now, wellness.SummaryDays)
	if err != nil {
		return advisor.Payload{}, fmt.Errorf("activity summary: %w", err)
	}
	snapshot, err := m.wellness.Latest(ctx, athleteID, now)
	if err != nil {
		return advisor.Payload{}, fmt.Errorf("latest wellness: %w", err)
	}
	goals, err := m.goals.AnalyzeAll(ctx, athleteID, now)
	if err != nil {
		return advisor.Payload{}, fmt.Errorf("analyze goals: %w", err)
	}
	recent, err := m.scheduler.ListRange(ctx, athleteID, now.AddDate(0, 0, -recentDays), now.AddDate(0, 0, -1))
	if err != nil {
		return advisor.Payload{}, fmt.Errorf("recent workouts: %w", err)
	}
	upcoming, err := m.scheduler.ListRange(ctx, athleteID, now, now.AddDate(0, 0, upcomingDays-1))
	if err != nil {
		return advisor.Payload{}, fmt.Errorf("upcoming workouts: %w", err)
	}

	rec := recommend.Recommend(goals, summary, snapshot)
	payload := advisor.Payload{
		Date:            now.Format(time.DateOnly),
		CurrentWeek:     progress.CurrentWeek,
		TotalWeeks:      progress.TotalWeeks,
		IsTestWeek:      progress.IsTestWeek,
		Wellness:        averages,
		Activity:        summary,
		RecentWorkouts:  make([]advisor.WorkoutSummary, 0, len(recent)),
		Upcoming:        make([]advisor.WorkoutSummary, 0, len(upcoming)),
		Goals:           make([]advisor.GoalSummary, 0, len(goals)),
		Recommendations: rec.Recommendations,
		Adjustment:      plan.Evaluate(snapshot, PerformanceTrend(goals)),
		PlanSummary:     planSummary(m.scheduler.Definition(), progress),
		UserNotes:       userNotes,
	}
	for _, w := range recent {
		payload.RecentWorkouts = append(payload.RecentWorkouts, advisor.SummarizeWorkout(w))
	}
	for _, w := range upcoming {
		payload.Upcoming = append(payload.Upcoming, advisor.SummarizeWorkout(w))
	}
	for _, p := range goals {
		payload.Goals = append(payload.Goals, advisor.SummarizeGoal(p))
	}
	return payload, nil
}

// PerformanceTrend condenses the goal trends into one: declining when any goal declines, improving when any
// improves, stable when any is stable, unknown otherwise.
func PerformanceTrend(progress []goal.Progress) goal.Trend {
	seen := map[goal.Trend]bool{}
	for _, p := range progress {
		seen[p.Trend] = true
	}
	for _, t := range []goal.Trend{goal.TrendDeclining, goal.TrendImproving, goal.TrendStable} {
		if seen[t] {
			return t
		}
	}
	return goal.TrendUnknown
}

func planSummary(def plan.Definition, progress plan.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, week %d of %d", def.Name, progress.CurrentWeek, progress.TotalWeeks)
	if progress.IsTestWeek {
		b.WriteString(" (test week)")
	}
	fmt.Fprintf(&b, ". Adherence %.1f%%, %d completed, %d skipped, %d modified of %d workouts.",
		progress.AdherenceRate, progress.Counts[plan.StatusCompleted], progress.Counts[plan.StatusSkipped],
		progress.Counts[plan.StatusModified], progress.Total)
	var slots []string
	for _, s := range def.Slots {
		slots = append(slots, fmt.Sprintf("day %d %s", s.Day, s.WorkoutType))
	}
	if len(slots) > 0 {
		b.WriteString(" Weekly slots: ")
		b.WriteString(strings.Join(slots, ", "))
		b.WriteString(".")
	}
	return b.String()
}
