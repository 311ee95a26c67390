package wellness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Provider fetches the wellness snapshot and completed activities of one day.
type Provider interface {
	Fetch(ctx context.Context, athleteID int, date time.Time) (Daily, error)
}

// Unavailable is the provider used when no wellness source is configured.
type Unavailable struct{}

// Fetch always fails with ErrProviderUnavailable.
func (Unavailable) Fetch(context.Context, int, time.Time) (Daily, error) {
	return Daily{}, ErrProviderUnavailable
}

// ProviderTimeout bounds a single provider request. It stays below the request budget of the import route so that
// a slow provider surfaces as a provider error.
const ProviderTimeout = 20 * time.Second

const maxResponseSize = 4 << 20

// HTTPProvider reads wellness data from a JSON endpoint authenticated with a bearer token.
type HTTPProvider struct {
	baseURL *url.URL
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPProvider creates a provider for the endpoint at baseURL.
func NewHTTPProvider(baseURL, token string, logger *slog.Logger) (*HTTPProvider, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse wellness url: %w", err)
	}
	return &HTTPProvider{
		baseURL: u,
		token:   token,
		client:  &http.Client{Timeout: ProviderTimeout},
		logger:  logger,
	}, nil
}

type dailyResponse struct {
	Snapshot struct {
		SleepScore        *int     `json:"sleep_score"`
		HRV               *float64 `json:"hrv"`
		HRVStatus         string   `json:"hrv_status"`
		TrainingReadiness *int     `json:"training_readiness"`
		RestingHR         *int     `json:"resting_hr"`
		Stress            *int     `json:"stress"`
		BodyBatteryHigh   *int     `json:"body_battery_high"`
		BodyBatteryLow    *int     `json:"body_battery_low"`
		Steps             *int     `json:"steps"`
		VO2Max            *float64 `json:"vo2_max"`
	} `json:"snapshot"`
	Activities []struct {
		ExternalID      string          `json:"external_id"`
		Type            string          `json:"type"`
		Name            string          `json:"name"`
		Date            string          `json:"date"`
		DurationMinutes float64         `json:"duration_minutes"`
		DistanceMeters  float64         `json:"distance_meters"`
		Raw             json.RawMessage `json:"raw"`
	} `json:"activities"`
}

// Fetch calls GET {base}/wellness?athlete_id=..&date=YYYY-MM-DD.
func (p *HTTPProvider) Fetch(ctx context.Context, athleteID int, date time.Time) (_ Daily, err error) {
	u := p.baseURL.JoinPath("wellness")
	q := u.Query()
	q.Set("athlete_id", fmt.Sprint(athleteID))
	q.Set("date", date.Format(time.DateOnly))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Daily{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Daily{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close body: %w", closeErr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Daily{}, fmt.Errorf("%w: read body: %w", ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "wellness provider returned error",
			slog.Int("status", resp.StatusCode), slog.Int("athlete_id", athleteID))
		return Daily{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	return decodeDaily(body, athleteID, date)
}

func decodeDaily(body []byte, athleteID int, date time.Time) (Daily, error) {
	var r dailyResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Daily{}, fmt.Errorf("%w: decode response: %w", ErrProviderUnavailable, err)
	}
	rawSnapshot, err := json.Marshal(r.Snapshot)
	if err != nil {
		return Daily{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	d := Daily{
		Snapshot: Snapshot{
			AthleteID:         athleteID,
			Date:              date,
			SleepScore:        r.Snapshot.SleepScore,
			HRV:               r.Snapshot.HRV,
			HRVStatus:         r.Snapshot.HRVStatus,
			TrainingReadiness: r.Snapshot.TrainingReadiness,
			RestingHR:         r.Snapshot.RestingHR,
			Stress:            r.Snapshot.Stress,
			BodyBatteryHigh:   r.Snapshot.BodyBatteryHigh,
			BodyBatteryLow:    r.Snapshot.BodyBatteryLow,
			Steps:             r.Snapshot.Steps,
			VO2Max:            r.Snapshot.VO2Max,
			Raw:               rawSnapshot,
		},
		Activities: make([]Activity, 0, len(r.Activities)),
	}
	for _, a := range r.Activities {
		activityDate := date
		if a.Date != "" {
			if activityDate, err = time.Parse(time.DateOnly, a.Date); err != nil {
				return Daily{}, fmt.Errorf("%w: activity %s date: %w", ErrProviderUnavailable, a.ExternalID, err)
			}
		}
		d.Activities = append(d.Activities, Activity{
			AthleteID:       athleteID,
			Source:          SourceProvider,
			ExternalID:      a.ExternalID,
			Type:            normalizeType(a.Type),
			Name:            a.Name,
			Date:            activityDate,
			DurationMinutes: a.DurationMinutes,
			DistanceMeters:  a.DistanceMeters,
			Raw:             a.Raw,
		})
	}
	return d, nil
}

// normalizeType maps provider activity type names onto the activity log types.
func normalizeType(t string) string {
	switch t {
	case TypeRun, "running", "trail_running", "treadmill_running":
		return TypeRun
	case TypeSwim, "swimming", "lap_swimming", "open_water_swimming":
		return TypeSwim
	case TypeBike, "cycling", "road_biking", "indoor_cycling", "mountain_biking":
		return TypeBike
	case TypeStrength, "strength_training":
		return TypeStrength
	default:
		return TypeOther
	}
}
