package wellness

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/tormoder/fit"
)

// DecodeFIT reads a FIT activity file into an Activity. When externalID is empty it is derived from the file id
// message so that importing the same file twice is detected.
func DecodeFIT(r io.Reader, externalID string) (Activity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Activity{}, fmt.Errorf("read fit file: %w", err)
	}

	if externalID == "" {
		_, fileID, idErr := fit.DecodeHeaderAndFileID(bytes.NewReader(data))
		if idErr != nil {
			return Activity{}, fmt.Errorf("%w: decode fit header: %w", ErrInvalidActivity, idErr)
		}
		if fileID.TimeCreated.IsZero() || fit.IsBaseTime(fileID.TimeCreated) {
			return Activity{}, fmt.Errorf("%w: fit file has no creation time", ErrInvalidActivity)
		}
		externalID = fmt.Sprintf("%d-%d", fileID.SerialNumber, fileID.TimeCreated.Unix())
	}

	decoded, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return Activity{}, fmt.Errorf("%w: decode fit file: %w", ErrInvalidActivity, err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return Activity{}, fmt.Errorf("%w: not an activity file: %w", ErrInvalidActivity, err)
	}
	if len(activity.Sessions) == 0 {
		return Activity{}, fmt.Errorf("%w: fit file has no sessions", ErrInvalidActivity)
	}
	session := activity.Sessions[0]
	if session.StartTime.IsZero() || fit.IsBaseTime(session.StartTime) {
		return Activity{}, fmt.Errorf("%w: session has no start time", ErrInvalidActivity)
	}

	seconds := positive(session.GetTotalTimerTimeScaled())
	if seconds == 0 {
		seconds = positive(session.GetTotalElapsedTimeScaled())
	}
	sport := fitSportType(session.Sport)
	return Activity{
		Source:          SourceFIT,
		ExternalID:      externalID,
		Type:            sport,
		Name:            fmt.Sprint(session.Sport),
		Date:            session.StartTime.UTC(),
		DurationMinutes: seconds / 60,
		DistanceMeters:  positive(session.GetTotalDistanceScaled()),
	}, nil
}

func fitSportType(sport fit.Sport) string {
	switch sport { //nolint:exhaustive // everything else is other.
	case fit.SportRunning:
		return TypeRun
	case fit.SportSwimming:
		return TypeSwim
	case fit.SportCycling:
		return TypeBike
	case fit.SportTraining:
		return TypeStrength
	default:
		return TypeOther
	}
}

func positive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
