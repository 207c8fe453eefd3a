package httpapi

import (
	"net/http"

	"github.com/go-chi/render"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	render.Status(r, status)
	render.JSON(w, r, payload)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	respondJSON(w, r, status, ErrorResponse{Error: err.Error()})
}
