package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/security/middleware"
	"github.com/aryan0dhankhar/assettrack/internal/service"
)

// UserManager is the policy-gated user API.
type UserManager interface {
	List(ctx context.Context, actor *domain.Principal, tenantFilter string) ([]*domain.User, error)
	Get(ctx context.Context, actor *domain.Principal, id string) (*domain.User, error)
	Create(ctx context.Context, actor *domain.Principal, req service.CreateUserRequest) (*domain.User, error)
	Update(ctx context.Context, actor *domain.Principal, id string, req service.UpdateUserRequest) (*domain.User, error)
	Delete(ctx context.Context, actor *domain.Principal, id string) error
	Me(ctx context.Context, actor *domain.Principal) (*domain.User, error)
	UpdateProfile(ctx context.Context, actor *domain.Principal, req service.UpdateProfileRequest) (*domain.User, error)
}

// UsersHandler serves /api/users.
type UsersHandler struct {
	users  UserManager
	logger *slog.Logger
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(users UserManager, logger *slog.Logger) *UsersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsersHandler{users: users, logger: logger}
}

// List handles GET /api/users?tenantId=
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context(), middleware.PrincipalFromContext(r.Context()), r.URL.Query().Get("tenantId"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, users)
}

// Create handles POST /api/users
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	user, err := h.users.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusCreated, user)
}

// Get handles GET /api/users/{id}
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, user)
}

// Update handles PUT /api/users/{id}
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateUserRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	user, err := h.users.Update(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, user)
}

// Delete handles DELETE /api/users/{id}
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/users/me
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Me(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, user)
}

// UpdateMe handles PUT /api/users/me
func (h *UsersHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), middleware.PrincipalFromContext(r.Context()), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, user)
}
