package main

import (
	"net/http"
	"time"

	"github.com/myrjola/fitcoach/internal/athlete"
)

type athleteResponse struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func newAthleteResponse(a athlete.Athlete) athleteResponse {
	return athleteResponse{ID: a.ID, Name: a.Name, CreatedAt: a.CreatedAt}
}

type createAthleteRequest struct {
	Name string `json:"name"`
}

func (app *application) athleteCreatePOST(w http.ResponseWriter, r *http.Request) {
	var req createAthleteRequest
	if err := readJSON(w, r, &req); err != nil {
		app.apiError(w, r, err)
		return
	}
	a, err := app.athletes.Create(r.Context(), req.Name)
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, newAthleteResponse(a))
}

func (app *application) athletesGET(w http.ResponseWriter, r *http.Request) {
	athletes, err := app.athletes.List(r.Context())
	if err != nil {
		app.apiError(w, r, err)
		return
	}
	response := make([]athleteResponse, 0, len(athletes))
	for _, a := range athletes {
		response = append(response, newAthleteResponse(a))
	}
	app.writeJSON(w, r, http.StatusOK, response)
}
