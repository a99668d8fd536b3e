package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/security/middleware"
	"github.com/aryan0dhankhar/assettrack/internal/service"
)

// Authenticator is the slice of the auth service the handlers need.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Register(ctx context.Context, req service.RegisterRequest) (*service.LoginResult, error)
	ChangePassword(ctx context.Context, p *domain.Principal, oldPassword, newPassword string) error
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth   Authenticator
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth Authenticator, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest represents change password request
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		respond(w, r, http.StatusBadRequest, ErrorResponse{Message: "username and password are required"})
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respond(w, r, http.StatusOK, result)
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	result, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.logger.Info("registration failed",
			slog.String("username", req.Username),
			slog.String("error", err.Error()),
		)
		respondError(w, r, h.logger, err)
		return
	}

	respond(w, r, http.StatusCreated, result)
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		respondError(w, r, h.logger, domain.ErrUnauthenticated)
		return
	}

	var req ChangePasswordRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	if req.OldPassword == "" || req.NewPassword == "" {
		respond(w, r, http.StatusBadRequest, ErrorResponse{Message: "oldPassword and newPassword are required"})
		return
	}

	if err := h.auth.ChangePassword(r.Context(), p, req.OldPassword, req.NewPassword); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respond(w, r, http.StatusOK, MessageResponse{Message: "password changed successfully"})
}
