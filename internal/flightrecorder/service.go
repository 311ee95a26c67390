// Package flightrecorder keeps a rolling execution trace in memory and writes it to disk when a request times out
// or the nightly run is slow.
package flightrecorder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime/trace"
	"sync/atomic"
	"time"
)

const (
	defaultMinAge   = 5 * time.Minute
	defaultMaxBytes = 64 << 20
	defaultCooldown = 30 * time.Minute
)

// Recorder captures the recent trace window on demand. A nil *Recorder is valid and captures nothing.
type Recorder struct {
	logger   *slog.Logger
	recorder *trace.FlightRecorder
	dir      string
	cooldown time.Duration
	now      func() time.Time
	// lastCapture is the Unix time of the last written trace.
	lastCapture atomic.Int64
}

type Config struct {
	Logger *slog.Logger
	// Dir receives the trace files. It is created when missing.
	Dir      string
	MinAge   time.Duration
	MaxBytes uint64
	// Cooldown is the minimum time between two captures.
	Cooldown time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func New(cfg Config) (*Recorder, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("traces directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil { //nolint:mnd // owner and group.
		return nil, fmt.Errorf("create traces directory: %w", err)
	}
	if stat, err := os.Stat(cfg.Dir); err != nil {
		return nil, fmt.Errorf("stat traces directory: %w", err)
	} else if !stat.IsDir() {
		return nil, fmt.Errorf("traces path is not a directory: %s", cfg.Dir)
	}

	r := &Recorder{
		logger: cfg.Logger,
		recorder: trace.NewFlightRecorder(trace.FlightRecorderConfig{
			MinAge:   cmp.Or(cfg.MinAge, defaultMinAge),
			MaxBytes: cmp.Or(cfg.MaxBytes, defaultMaxBytes),
		}),
		dir:         cfg.Dir,
		cooldown:    cmp.Or(cfg.Cooldown, defaultCooldown),
		now:         cfg.Now,
		lastCapture: atomic.Int64{},
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Start begins recording.
func (r *Recorder) Start(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.recorder.Start(); err != nil {
		return fmt.Errorf("start flight recorder: %w", err)
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "flight recorder started", slog.String("dir", r.dir),
		slog.Duration("cooldown", r.cooldown))
	return nil
}

// Stop ends recording.
func (r *Recorder) Stop(ctx context.Context) {
	if r == nil {
		return
	}
	r.recorder.Stop()
	r.logger.LogAttrs(ctx, slog.LevelInfo, "flight recorder stopped")
}

var unsafeReason = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Capture writes the recorded window to <reason>-<timestamp>.trace and returns the file path. Captures inside the
// cooldown are skipped and return an empty path.
func (r *Recorder) Capture(ctx context.Context, reason string) string {
	if r == nil || !r.recorder.Enabled() {
		return ""
	}
	now := r.now()
	last := r.lastCapture.Load()
	if last > 0 && now.Sub(time.Unix(last, 0)) < r.cooldown {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "skipping trace capture during cooldown",
			slog.String("reason", reason), slog.Time("last_capture", time.Unix(last, 0)))
		return ""
	}
	if !r.lastCapture.CompareAndSwap(last, now.Unix()) {
		return ""
	}

	name := fmt.Sprintf("%s-%s.trace", unsafeReason.ReplaceAllString(reason, "_"), now.UTC().Format("20060102-150405"))
	path := filepath.Join(r.dir, name)
	file, err := os.Create(path)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to create trace file", slog.String("file", path),
			slog.Any("error", err))
		return ""
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to close trace file", slog.String("file", path),
				slog.Any("error", closeErr))
		}
	}()

	written, err := r.recorder.WriteTo(file)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to write trace", slog.String("file", path),
			slog.Any("error", err))
		return ""
	}
	r.logger.LogAttrs(ctx, slog.LevelWarn, "captured trace", slog.String("reason", reason),
		slog.String("file", path), slog.Int64("bytes", written))
	return path
}
