package wellness_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/fitcoach/internal/wellness"
	"github.com/tormoder/fit"
)

func buildFIT(t *testing.T, sessions ...*fit.SessionMsg) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}
	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}
	activity.Sessions = append(activity.Sessions, sessions...)

	var buf bytes.Buffer
	if err = fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}

func runSession(start time.Time) *fit.SessionMsg {
	session := fit.NewSessionMsg()
	session.Timestamp = start.Add(30 * time.Minute)
	session.StartTime = start
	session.Sport = fit.SportRunning
	session.TotalTimerTime = 30 * 60 * 1000
	session.TotalElapsedTime = 31 * 60 * 1000
	session.TotalDistance = 5000 * 100
	return session
}

func TestDecodeFIT(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 3, 8, 7, 30, 0, 0, time.UTC)

	got, err := wellness.DecodeFIT(bytes.NewReader(buildFIT(t, runSession(start))), "upload-1")
	if err != nil {
		t.Fatalf("DecodeFIT() error = %v", err)
	}
	want := wellness.Activity{
		Source:          wellness.SourceFIT,
		ExternalID:      "upload-1",
		Type:            wellness.TypeRun,
		Name:            got.Name,
		Date:            start,
		DurationMinutes: 30,
		DistanceMeters:  5000,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeFIT() mismatch (-want +got):\n%s", diff)
	}

	if _, err = wellness.DecodeFIT(bytes.NewReader(buildFIT(t)), "upload-2"); !errors.Is(err, wellness.ErrInvalidActivity) {
		t.Errorf("DecodeFIT() without sessions error = %v, want %v", err, wellness.ErrInvalidActivity)
	}
	if _, err = wellness.DecodeFIT(bytes.NewReader([]byte("not a fit file")), "upload-3"); !errors.Is(
		err, wellness.ErrInvalidActivity) {
		t.Errorf("DecodeFIT() garbage error = %v, want %v", err, wellness.ErrInvalidActivity)
	}
}

func TestService_ImportFIT(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	svc, _ := newServices(t, wellness.Unavailable{})
	data := buildFIT(t, runSession(today.Add(-24*time.Hour)))

	activity, inserted, err := svc.ImportFIT(ctx, athleteID, bytes.NewReader(data), "upload-1")
	if err != nil {
		t.Fatalf("ImportFIT() error = %v", err)
	}
	if !inserted || activity.AthleteID != athleteID {
		t.Errorf("ImportFIT() = %+v, %t, want a new activity of the athlete", activity, inserted)
	}
	if _, inserted, err = svc.ImportFIT(ctx, athleteID, bytes.NewReader(data), "upload-1"); err != nil || inserted {
		t.Errorf("second ImportFIT() = %t, %v, want duplicate", inserted, err)
	}

	summary, err := svc.Summary(ctx, athleteID, today, wellness.SummaryDays)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.CardioSessions != 1 || summary.TotalMinutes != 30 {
		t.Errorf("Summary() = %+v, want one 30 minute cardio session", summary)
	}
}
