package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/myrjola/fitcoach/internal/e2etest"
	"github.com/myrjola/fitcoach/internal/logging"
	"github.com/myrjola/fitcoach/internal/testhelpers"
)

type planStatus struct {
	Initialized bool `json:"initialized"`
	CurrentWeek int  `json:"current_week"`
	TotalWeeks  int  `json:"total_weeks"`
}

// TestPlanStatus fetches the plan status and dashboard of an existing athlete.
func TestPlanStatus(client *e2etest.Client, athleteID string) (planStatus, error) {
	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	var status planStatus
	if err := client.GetJSON(ctx, "/api/athletes/"+athleteID+"/plan", &status); err != nil {
		return planStatus{}, fmt.Errorf("get plan status: %w", err)
	}
	doc, err := client.GetDoc(ctx, "/athletes/"+athleteID)
	if err != nil {
		return planStatus{}, fmt.Errorf("get dashboard: %w", err)
	}
	if doc.Find("section#plan").Length() == 0 {
		return planStatus{}, fmt.Errorf("dashboard of athlete %s has no plan section", athleteID)
	}
	return status, nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) < 2 || len(os.Args) > 3 { //nolint:mnd // hostname and optional athlete id.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname> [athlete-id]")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		client   *e2etest.Client
		err      error
		start    = time.Now()
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", hostname))
	url := "https://" + hostname
	if strings.Contains(hostname, "localhost") {
		url = "http://" + hostname
	}

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", slog.Any("error", err))
		os.Exit(1)
	}
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready in time", slog.Any("error", err))
		os.Exit(1)
	}
	if len(os.Args) == 3 { //nolint:mnd // athlete id given.
		athleteID := os.Args[2]
		ctx = logging.WithAttrs(ctx, slog.String("athlete_id", athleteID))
		var status planStatus
		if status, err = TestPlanStatus(client, athleteID); err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "error testing plan status", slog.Any("error", err))
			os.Exit(1)
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "plan status", slog.Bool("initialized", status.Initialized),
			slog.Int("current_week", status.CurrentWeek), slog.Int("total_weeks", status.TotalWeeks))
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌", slog.Duration("duration", time.Since(start)))
	os.Exit(0)
}
