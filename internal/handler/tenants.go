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

// TenantManager is the policy-gated tenant API.
type TenantManager interface {
	List(ctx context.Context, actor *domain.Principal) ([]*domain.Tenant, error)
	Get(ctx context.Context, actor *domain.Principal, id string) (*domain.Tenant, error)
	Create(ctx context.Context, actor *domain.Principal, req service.CreateTenantRequest) (*domain.Tenant, error)
	Update(ctx context.Context, actor *domain.Principal, id string, req service.UpdateTenantRequest) (*domain.Tenant, error)
	Delete(ctx context.Context, actor *domain.Principal, id string) error
	UpdateSMTP(ctx context.Context, actor *domain.Principal, id string, req service.SMTPRequest) (*domain.Tenant, error)
	UpdateStripe(ctx context.Context, actor *domain.Principal, id string, req service.StripeRequest) (*domain.Tenant, error)
}

// TenantsHandler serves /api/tenants.
type TenantsHandler struct {
	tenants TenantManager
	logger  *slog.Logger
}

// NewTenantsHandler creates a new tenants handler
func NewTenantsHandler(tenants TenantManager, logger *slog.Logger) *TenantsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantsHandler{tenants: tenants, logger: logger}
}

func (h *TenantsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, tenants)
}

func (h *TenantsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTenantRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	t, err := h.tenants.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusCreated, t)
}

func (h *TenantsHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.Get(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, t)
}

func (h *TenantsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateTenantRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	t, err := h.tenants.Update(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, t)
}

func (h *TenantsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.tenants.Delete(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSMTP handles PUT /api/tenants/{id}/smtp
func (h *TenantsHandler) UpdateSMTP(w http.ResponseWriter, r *http.Request) {
	var req service.SMTPRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	t, err := h.tenants.UpdateSMTP(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, t)
}

// UpdateStripe handles PUT /api/tenants/{id}/stripe
func (h *TenantsHandler) UpdateStripe(w http.ResponseWriter, r *http.Request) {
	var req service.StripeRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	t, err := h.tenants.UpdateStripe(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, t)
}
