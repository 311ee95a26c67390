package flightrecorder_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/fitcoach/internal/flightrecorder"
	"github.com/myrjola/fitcoach/internal/testhelpers"
)

// Only one flight recorder can run per process so these tests are sequential.

func TestRecorder_Capture(t *testing.T) {
	var (
		ctx = t.Context()
		dir = t.TempDir()
		now = time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	)
	recorder, err := flightrecorder.New(flightrecorder.Config{ //nolint:exhaustruct // defaults.
		Logger: testhelpers.NewLogger(testhelpers.NewWriter(t)),
		Dir:    dir,
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := recorder.Capture(ctx, "timeout"); got != "" {
		t.Errorf("Capture() before Start = %q, want nothing", got)
	}
	if err = recorder.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer recorder.Stop(ctx)

	path := recorder.Capture(ctx, "GET /api/athletes")
	if !strings.HasSuffix(path, "GET_api_athletes-20260302-030000.trace") {
		t.Errorf("Capture() path = %q", path)
	}
	if got := recorder.Capture(ctx, "nightly"); got != "" {
		t.Errorf("Capture() during cooldown = %q, want nothing", got)
	}
	now = now.Add(31 * time.Minute)
	if got := recorder.Capture(ctx, "nightly"); !strings.HasSuffix(got, "nightly-20260302-033100.trace") {
		t.Errorf("Capture() after cooldown = %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read traces directory: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d trace files, want 2", len(entries))
	}
}

func TestRecorder_nil(t *testing.T) {
	var recorder *flightrecorder.Recorder
	if err := recorder.Start(t.Context()); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if got := recorder.Capture(t.Context(), "timeout"); got != "" {
		t.Errorf("Capture() = %q, want nothing", got)
	}
	recorder.Stop(t.Context())
}

func TestNew_requiresDirectory(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "not-a-dir")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	_ = file.Close()
	if _, err = flightrecorder.New(flightrecorder.Config{ //nolint:exhaustruct // defaults.
		Logger: testhelpers.NewLogger(testhelpers.NewWriter(t)),
		Dir:    file.Name(),
	}); err == nil {
		t.Error("New() with a file path succeeded")
	}
}
