package main

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
)

const maxCSPReportSize = 64 << 10

// cspReport is the legacy report-uri payload sent by browsers when the dashboard violates its policy.
type cspReport struct {
	Body struct {
		DocumentURI        string `json:"document-uri"`
		ViolatedDirective  string `json:"violated-directive"`
		EffectiveDirective string `json:"effective-directive"`
		BlockedURI         string `json:"blocked-uri"`
		SourceFile         string `json:"source-file"`
		LineNumber         int    `json:"line-number"`
		ScriptSample       string `json:"script-sample"`
	} `json:"csp-report"`
}

func (app *application) cspViolationPOST(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, _ := mime.ParseMediaType(contentType)
		if mediaType != "application/csp-report" && mediaType != "application/json" {
			app.logger.LogAttrs(ctx, slog.LevelWarn, "CSP report with unexpected content type",
				slog.String("content_type", contentType))
		}
	}

	var report cspReport
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCSPReportSize)).Decode(&report); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelWarn, "invalid CSP report", slog.Any("error", err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	app.logger.LogAttrs(ctx, slog.LevelWarn, "CSP violation",
		slog.String("document_uri", report.Body.DocumentURI),
		slog.String("violated_directive", report.Body.ViolatedDirective),
		slog.String("effective_directive", report.Body.EffectiveDirective),
		slog.String("blocked_uri", report.Body.BlockedURI),
		slog.String("source_file", report.Body.SourceFile),
		slog.Int("line_number", report.Body.LineNumber),
		slog.String("script_sample", report.Body.ScriptSample),
		slog.String("user_agent", r.UserAgent()))
	w.WriteHeader(http.StatusNoContent)
}
