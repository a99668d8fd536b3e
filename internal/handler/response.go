package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

// respondError maps the domain error taxonomy onto a status code. Anything
// outside the taxonomy is a 500 and its text never reaches the client.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		respond(w, r, http.StatusBadRequest, ErrorResponse{Message: vErr.Message, Errors: vErr.Errors})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrTenantResolution):
		respond(w, r, http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidCredentials):
		respond(w, r, http.StatusUnauthorized, ErrorResponse{Message: "invalid credentials"})
	case errors.Is(err, domain.ErrUnauthenticated):
		respond(w, r, http.StatusUnauthorized, ErrorResponse{Message: "authentication required"})
	case errors.Is(err, domain.ErrForbidden):
		respond(w, r, http.StatusForbidden, ErrorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		respond(w, r, http.StatusNotFound, ErrorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		respond(w, r, http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	default:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		respond(w, r, http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
	}
}

// decode reads a JSON body into v; a malformed body is a 400.
func decode(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		logger.Warn("failed to decode request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		respond(w, r, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return false
	}
	return true
}
