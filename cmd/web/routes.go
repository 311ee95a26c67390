package main

import (
	"net/http"
)

func (app *application) routes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	var (
		shared = func(next http.Handler) http.Handler {
			return app.logAndTraceRequest(secureHeaders(app.crossOriginProtection(
				commonContext(app.timeout(next)))))
		}
		api = func(next http.HandlerFunc) http.Handler {
			return app.recoverPanic(noCache(shared(next)))
		}
		session = func(next http.HandlerFunc) http.Handler {
			return app.recoverPanic(noCache(app.sessionManager.LoadAndSave(shared(next))))
		}
	)

	mux.Handle("GET /api/healthy", api(app.healthy))
	mux.Handle("GET /api/test/timeout", api(app.testTimeout))
	mux.Handle("POST /api/csp-violation", api(app.cspViolationPOST))

	mux.Handle("POST /api/athletes", api(app.athleteCreatePOST))
	mux.Handle("GET /api/athletes", api(app.athletesGET))

	mux.Handle("GET /api/athletes/{athleteID}/plan", api(app.planGET))
	mux.Handle("POST /api/athletes/{athleteID}/plan", api(app.planPOST))
	mux.Handle("GET /api/athletes/{athleteID}/plan/weeks/{week}", api(app.planWeekGET))
	mux.Handle("POST /api/athletes/{athleteID}/workouts/{date}/{type}/{action}", api(app.workoutActionPOST))

	mux.Handle("POST /api/athletes/{athleteID}/goals", api(app.goalCreatePOST))
	mux.Handle("GET /api/athletes/{athleteID}/goals/progress", api(app.goalProgressGET))
	mux.Handle("POST /api/athletes/{athleteID}/metrics", api(app.metricPOST))
	mux.Handle("GET /api/athletes/{athleteID}/metrics", api(app.metricsGET))
	mux.Handle("GET /api/athletes/{athleteID}/recommendations", api(app.recommendationsGET))

	mux.Handle("POST /api/athletes/{athleteID}/activities/fit", api(app.fitUploadPOST))
	mux.Handle("POST /api/athletes/{athleteID}/activities/strength", api(app.strengthImportPOST))
	mux.Handle("GET /api/athletes/{athleteID}/activities", api(app.activitiesGET))
	mux.Handle("POST /api/athletes/{athleteID}/wellness/{date}/import", api(app.wellnessImportPOST))

	mux.Handle("POST /api/athletes/{athleteID}/evaluations", api(app.evaluationPOST))
	mux.Handle("GET /api/athletes/{athleteID}/reviews/latest", api(app.latestReviewGET))
	mux.Handle("GET /api/athletes/{athleteID}/reviews/{reviewID}", api(app.reviewGET))
	mux.Handle("POST /api/athletes/{athleteID}/reviews/{reviewID}/modifications/{index}/{action}",
		api(app.modificationActionPOST))
	mux.Handle("GET /api/athletes/{athleteID}/adjustments", api(app.adjustmentsGET))

	mux.Handle("GET /api/athletes/{athleteID}/export", api(app.exportGET))

	mux.Handle("GET /athletes/{athleteID}", session(app.dashboardGET))
	mux.Handle("POST /athletes/{athleteID}/evaluations", session(app.dashboardEvaluationPOST))
	mux.Handle("POST /athletes/{athleteID}/reviews/{reviewID}/modifications/{index}/{action}",
		session(app.dashboardModificationPOST))

	mux.Handle("/", session(app.notFound))

	return mux, nil
}
