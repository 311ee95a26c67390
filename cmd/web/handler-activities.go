package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/myrjola/fitcoach/internal/wellness"
)

const maxFITSize = 16 << 20

type fitUploadResponse struct {
	Activity wellness.Activity `json:"activity"`
	Inserted bool              `json:"inserted"`
}

// fitUploadPOST imports the FIT file sent as the request body. The optional external_id query parameter overrides
// the id derived from the file.
func (app *application) fitUploadPOST(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxFITSize)
	activity, inserted, err := app.wellness.ImportFIT(r.Context(), a.ID, body, r.URL.Query().Get("external_id"))
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	app.writeJSON(w, r, status, fitUploadResponse{Activity: activity, Inserted: inserted})
}

func (app *application) strengthImportPOST(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	var sessions []wellness.StrengthSession
	if err = readJSON(w, r, &sessions); err != nil {
		app.apiError(w, r, err)
		return
	}
	result, err := app.wellness.ImportStrength(r.Context(), a.ID, sessions)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, result)
}

// wellnessImportPOST fetches the wellness data of the date path parameter from the provider.
func (app *application) wellnessImportPOST(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	date, err := parseDateParam(r, "date")
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	result, err := app.wellness.Import(r.Context(), a.ID, date)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, result)
}

func (app *application) activitiesGET(w http.ResponseWriter, r *http.Request) {
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	activities, err := app.wellness.Activities(r.Context(), a.ID, app.now(), wellness.SummaryDays)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	if activities == nil {
		activities = []wellness.Activity{}
	}
	app.writeJSON(w, r, http.StatusOK, activities)
}

// exportGET streams a standalone SQLite archive of everything the athlete owns.
func (app *application) exportGET(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := app.athleteFromPath(r)
	if err != nil {
		app.apiError(w, r, err)
		return
	}

	dir, err := os.MkdirTemp(app.exportDir, "fitcoach-export-")
	if err != nil {
		app.apiError(w, r, fmt.Errorf("create export dir: %w", err))
		return
	}
	defer func() {
		if removeErr := os.RemoveAll(dir); removeErr != nil {
			app.logger.LogAttrs(ctx, slog.LevelWarn, "failed to remove temporary export dir",
				slog.String("path", dir), slog.Any("error", removeErr))
		}
	}()

	exportPath, err := app.db.ExportAthlete(ctx, a.ID, dir)
	if err != nil {
		app.apiError(w, r, fmt.Errorf("export athlete: %w", err))
		return
	}

	file, err := os.Open(exportPath)
	if err != nil {
		app.apiError(w, r, fmt.Errorf("open export file: %w", err))
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			app.logger.LogAttrs(ctx, slog.LevelWarn, "failed to close export file",
				slog.String("path", exportPath), slog.Any("error", closeErr))
		}
	}()

	filename := filepath.Base(exportPath)
	w.Header().Set("Content-Type", "application/x-sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	if _, err = io.Copy(w, file); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "failed to stream export file to client",
			slog.String("path", exportPath), slog.Any("error", err))
		return
	}
}
