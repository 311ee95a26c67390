package goal_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/ptr"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // fixed test clock.

// history builds newest-first metrics, one per day ending today.
func history(values ...float64) []goal.Metric {
	metrics := make([]goal.Metric, 0, len(values))
	for i, v := range values {
		metrics = append(metrics, goal.Metric{
			Date:  time.Date(2025, 3, 10-i, 0, 0, 0, 0, time.UTC),
			Value: ptr.Ref(v),
		})
	}
	return metrics
}

func TestAnalyze_noData(t *testing.T) {
	t.Parallel()
	g := goal.Goal{Name: "VO2max", MetricType: "vo2_max", Target: 55, Direction: goal.DirectionIncrease}

	// Text-only observations do not qualify.
	got := goal.Analyze(g, []goal.Metric{{Date: now, TextValue: ptr.Ref("felt good")}}, now)

	if got.Status != goal.ProgressNoData || got.ProgressPercent != 0 || got.Trend != goal.TrendUnknown ||
		got.OnTrack != nil || got.CurrentValue != nil || got.DaysToTarget != nil {
		t.Errorf("Analyze() = %+v, want no_data with placeholders", got)
	}
	if got.Recommendation == "" {
		t.Errorf("Analyze() recommendation is empty")
	}
}

func TestAnalyze_progressClamp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		direction goal.Direction
		baseline  float64
		target    float64
		current   float64
		want      float64
	}{
		{"decrease halfway", goal.DirectionDecrease, 20, 10, 15, 50},
		{"decrease overshoot", goal.DirectionDecrease, 20, 10, 5, 100},
		{"decrease regress", goal.DirectionDecrease, 20, 10, 25, 0},
		{"decrease baseline equals target reached", goal.DirectionDecrease, 10, 10, 9, 100},
		{"decrease baseline equals target missed", goal.DirectionDecrease, 10, 10, 11, 0},
		{"increase quarter", goal.DirectionIncrease, 40, 60, 45, 25},
		{"increase overshoot", goal.DirectionIncrease, 40, 60, 70, 100},
		{"increase regress", goal.DirectionIncrease, 40, 60, 30, 0},
		{"increase baseline equals target reached", goal.DirectionIncrease, 60, 60, 60, 100},
		{"increase baseline equals target missed", goal.DirectionIncrease, 60, 60, 59, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := goal.Goal{Name: tt.name, MetricType: "x", Target: tt.target, Baseline: ptr.Ref(tt.baseline),
				Direction: tt.direction}
			got := goal.Analyze(g, history(tt.current), now)
			if got.ProgressPercent != tt.want {
				t.Errorf("ProgressPercent = %v, want %v", got.ProgressPercent, tt.want)
			}
			if got.ProgressPercent < 0 || got.ProgressPercent > 100 {
				t.Errorf("ProgressPercent %v outside [0, 100]", got.ProgressPercent)
			}
		})
	}
}

func TestAnalyze_maintain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		min     *float64
		max     *float64
		current float64
		want    float64
	}{
		{"inside band", ptr.Ref(70.0), ptr.Ref(75.0), 72, 100},
		{"outside band", ptr.Ref(70.0), ptr.Ref(75.0), 80, 50},
		{"only lower bound", ptr.Ref(70.0), nil, 90, 100},
		{"no band on target", nil, nil, 72, 100},
		{"no band off target", nil, nil, 72.5, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := goal.Goal{Name: "Weight", MetricType: "weight", Target: 72, Direction: goal.DirectionMaintain,
				MinAcceptable: tt.min, MaxAcceptable: tt.max}
			if got := goal.Analyze(g, history(tt.current), now).ProgressPercent; got != tt.want {
				t.Errorf("ProgressPercent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalyze_trend(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		direction goal.Direction
		values    []float64
		want      goal.Trend
	}{
		{"single observation", goal.DirectionIncrease, []float64{50}, goal.TrendUnknown},
		{"1.9 percent is stable", goal.DirectionIncrease, []float64{101.9, 101.9, 101.9, 100, 100, 100}, goal.TrendStable},
		{"2.1 percent improves", goal.DirectionIncrease, []float64{102.1, 102.1, 102.1, 100, 100, 100}, goal.TrendImproving},
		{"increase falling declines", goal.DirectionIncrease, []float64{90, 90, 90, 100, 100, 100}, goal.TrendDeclining},
		{"decrease falling improves", goal.DirectionDecrease, []float64{18, 18, 18, 20, 20, 20}, goal.TrendImproving},
		{"decrease rising declines", goal.DirectionDecrease, []float64{22, 22, 22, 20, 20, 20}, goal.TrendDeclining},
		{"maintain rising improves", goal.DirectionMaintain, []float64{80, 80, 80, 70, 70, 70}, goal.TrendImproving},
		{"maintain falling declines", goal.DirectionMaintain, []float64{60, 60, 60, 70, 70, 70}, goal.TrendDeclining},
		{"fewer than four uses oldest", goal.DirectionIncrease, []float64{60, 55, 50}, goal.TrendImproving},
		{"flat zero is stable", goal.DirectionIncrease, []float64{0, 0}, goal.TrendStable},
		{"only the next three older values count", goal.DirectionIncrease,
			[]float64{100, 100, 100, 100, 100, 100, 1, 1, 1, 1}, goal.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := goal.Goal{Name: tt.name, MetricType: "x", Target: 1000, Direction: tt.direction}
			if tt.direction == goal.DirectionDecrease {
				g.Target = 0
			}
			if got := goal.Analyze(g, history(tt.values...), now).Trend; got != tt.want {
				t.Errorf("Trend = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalyze_daysToTargetAndOnTrack(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		goal        goal.Goal
		values      []float64
		wantDays    *int
		wantOnTrack bool
	}{
		{
			name:        "already reached",
			goal:        goal.Goal{Target: 50, Direction: goal.DirectionIncrease},
			values:      []float64{51, 45},
			wantDays:    ptr.Ref(0),
			wantOnTrack: true,
		},
		{
			name:        "single observation without target date uses trend",
			goal:        goal.Goal{Target: 50, Direction: goal.DirectionIncrease},
			values:      []float64{40},
			wantDays:    nil,
			wantOnTrack: false,
		},
		{
			name:        "linear extrapolation",
			goal:        goal.Goal{Target: 50, Direction: goal.DirectionIncrease},
			values:      []float64{44, 42, 40},
			wantDays:    ptr.Ref(3),
			wantOnTrack: true,
		},
		{
			name:        "moving away has no estimate",
			goal:        goal.Goal{Target: 10, Direction: goal.DirectionDecrease},
			values:      []float64{24, 22, 20},
			wantDays:    nil,
			wantOnTrack: false,
		},
		{
			name:        "no change has no estimate",
			goal:        goal.Goal{Target: 10, Direction: goal.DirectionDecrease},
			values:      []float64{20, 20},
			wantDays:    nil,
			wantOnTrack: false,
		},
		{
			name: "estimate within remaining days",
			goal: goal.Goal{Target: 50, Direction: goal.DirectionIncrease,
				TargetDate: ptr.Ref(time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC))},
			values:      []float64{44, 42, 40},
			wantDays:    ptr.Ref(3),
			wantOnTrack: true,
		},
		{
			name: "estimate beyond remaining days",
			goal: goal.Goal{Target: 50, Direction: goal.DirectionIncrease,
				TargetDate: ptr.Ref(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))},
			values:      []float64{44, 42, 40},
			wantDays:    ptr.Ref(3),
			wantOnTrack: false,
		},
		{
			name: "target date passed and met",
			goal: goal.Goal{Target: 15, Direction: goal.DirectionDecrease,
				TargetDate: ptr.Ref(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))},
			values:      []float64{14, 16},
			wantDays:    ptr.Ref(0),
			wantOnTrack: true,
		},
		{
			name: "target date passed and missed",
			goal: goal.Goal{Target: 15, Direction: goal.DirectionDecrease,
				TargetDate: ptr.Ref(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))},
			values:      []float64{16, 18},
			wantDays:    ptr.Ref(1),
			wantOnTrack: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.goal.Name = tt.name
			tt.goal.MetricType = "x"
			got := goal.Analyze(tt.goal, history(tt.values...), now)
			if diff := cmp.Diff(tt.wantDays, got.DaysToTarget); diff != "" {
				t.Errorf("DaysToTarget mismatch (-want +got):\n%s", diff)
			}
			if got.OnTrack == nil || *got.OnTrack != tt.wantOnTrack {
				t.Errorf("OnTrack = %v, want %v", got.OnTrack, tt.wantOnTrack)
			}
		})
	}
}

func TestAnalyze_baselineResolution(t *testing.T) {
	t.Parallel()
	g := goal.Goal{Name: "Body fat", MetricType: "body_fat", Target: 10, Direction: goal.DirectionDecrease}

	// Without a stored baseline the oldest observation is the baseline: (20-15)/(20-10).
	if got := goal.Analyze(g, history(15, 18, 20), now).ProgressPercent; got != 50 {
		t.Errorf("ProgressPercent with oldest baseline = %v, want 50", got)
	}
	// A single observation is its own baseline.
	if got := goal.Analyze(g, history(15), now).ProgressPercent; got != 0 {
		t.Errorf("ProgressPercent with single observation = %v, want 0", got)
	}
}

func TestAnalyze_historyCap(t *testing.T) {
	t.Parallel()
	g := goal.Goal{Name: "VO2max", MetricType: "vo2_max", Target: 60, Direction: goal.DirectionIncrease}
	values := make([]float64, 15)
	for i := range values {
		values[i] = float64(50 - i)
	}
	got := goal.Analyze(g, history(values...), now)
	if got.DataPoints != goal.MaxHistory {
		t.Errorf("DataPoints = %d, want %d", got.DataPoints, goal.MaxHistory)
	}
	// Baseline is the tenth newest value (41), so (50-41)/(60-41).
	if want := 9.0 / 19.0 * 100; got.ProgressPercent != want {
		t.Errorf("ProgressPercent = %v, want %v", got.ProgressPercent, want)
	}
}

func TestAnalyze_recommendationTable(t *testing.T) {
	t.Parallel()
	declining := history(30, 30, 30, 40, 40, 40)
	tests := []struct {
		metricType string
		want       string
	}{
		{"vo2_max", "VO2max is slipping"},
		{"vertical_jump", "Jump performance is dropping"},
		{"swim_400m_time", "Swim times are slowing"},
		{"grip_strength", "This metric is moving the wrong way"},
	}
	for _, tt := range tests {
		t.Run(tt.metricType, func(t *testing.T) {
			t.Parallel()
			direction := goal.DirectionIncrease
			values := declining
			if goal.IsSwimTime(tt.metricType) {
				direction = goal.DirectionDecrease
				values = history(40, 40, 40, 30, 30, 30)
			}
			g := goal.Goal{Name: tt.metricType, MetricType: tt.metricType, Target: 100, Direction: direction}
			if direction == goal.DirectionDecrease {
				g.Target = 1
			}
			got := goal.Analyze(g, values, now).Recommendation
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("Recommendation = %q, want prefix %q", got, tt.want)
			}
		})
	}
}
