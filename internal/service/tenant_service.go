package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/observability/metrics"
	"github.com/aryan0dhankhar/assettrack/internal/security"
	"github.com/aryan0dhankhar/assettrack/internal/security/audit"
)

// CreateTenantRequest is the body of an explicit tenant creation.
type CreateTenantRequest struct {
	Name               string                    `json:"name" validate:"required,max=200"`
	SubscriptionPlan   domain.Plan               `json:"subscriptionPlan" validate:"omitempty,oneof=basic pro enterprise"`
	SubscriptionStatus domain.SubscriptionStatus `json:"subscriptionStatus" validate:"omitempty,oneof=active trial past_due cancelled"`
	NextBillingDate    *time.Time                `json:"nextBillingDate,omitempty"`
}

// UpdateTenantRequest changes tenant metadata. Limits follow the plan and
// cannot be set directly.
type UpdateTenantRequest struct {
	Name               *string                    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	SubscriptionPlan   *domain.Plan               `json:"subscriptionPlan,omitempty" validate:"omitempty,oneof=basic pro enterprise"`
	SubscriptionStatus *domain.SubscriptionStatus `json:"subscriptionStatus,omitempty" validate:"omitempty,oneof=active trial past_due cancelled"`
	NextBillingDate    *time.Time                 `json:"nextBillingDate,omitempty"`
}

// SMTPRequest replaces a tenant's mail settings. An empty password keeps the
// stored one.
type SMTPRequest struct {
	Host     string `json:"host" validate:"required,max=255"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Username string `json:"username" validate:"max=255"`
	Password string `json:"password"`
	From     string `json:"from" validate:"required,email"`
	UseTLS   bool   `json:"useTls"`
}

// StripeRequest replaces a tenant's billing keys. An empty secret key keeps
// the stored one.
type StripeRequest struct {
	PublishableKey string `json:"publishableKey" validate:"required"`
	SecretKey      string `json:"secretKey"`
	CustomerID     string `json:"customerId"`
}

// TenantService runs policy-gated tenant CRUD. Returned tenants are redacted.
type TenantService struct {
	tenants  domain.TenantRepository
	users    domain.UserRepository
	tx       domain.Transactor
	policy   *security.Policy
	audit    *audit.Logger
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewTenantService(
	tenants domain.TenantRepository,
	users domain.UserRepository,
	tx domain.Transactor,
	policy *security.Policy,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	return &TenantService{
		tenants:  tenants,
		users:    users,
		tx:       tx,
		policy:   policy,
		audit:    auditLog,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *TenantService) List(ctx context.Context, actor *domain.Principal) ([]*domain.Tenant, error) {
	if err := s.policy.CanManageTenants(ctx, actor, security.OpListTenants); err != nil {
		return nil, err
	}
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Tenant, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, t.Redacted())
	}
	return out, nil
}

func (s *TenantService) Get(ctx context.Context, actor *domain.Principal, id string) (*domain.Tenant, error) {
	if err := s.policy.CanReadTenant(ctx, actor, id); err != nil {
		return nil, err
	}
	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Redacted(), nil
}

func (s *TenantService) Create(ctx context.Context, actor *domain.Principal, req CreateTenantRequest) (*domain.Tenant, error) {
	if err := s.policy.CanManageTenants(ctx, actor, security.OpCreateTenant); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	t := &domain.Tenant{
		Name:               req.Name,
		SubscriptionStatus: req.SubscriptionStatus,
		NextBillingDate:    req.NextBillingDate,
	}
	if t.SubscriptionStatus == "" {
		t.SubscriptionStatus = domain.StatusActive
	}
	if t.NextBillingDate == nil {
		next := s.now().AddDate(0, 1, 0)
		t.NextBillingDate = &next
	}
	plan := req.SubscriptionPlan
	if plan == "" {
		plan = domain.PlanBasic
	}
	t.ApplyPlan(plan)

	if err := s.tenants.Create(ctx, t); err != nil {
		return nil, conflictError(err)
	}

	metrics.ObserveTenantProvisioned("explicit")
	s.audit.LogSuccess(ctx, actor, "create", "tenant", t.ID)
	s.logger.Info("tenant created",
		slog.String("tenant_id", t.ID),
		slog.String("plan", string(t.SubscriptionPlan)),
	)
	return t.Redacted(), nil
}

// Update changes tenant metadata; a plan change recomputes the limits.
func (s *TenantService) Update(ctx context.Context, actor *domain.Principal, id string, req UpdateTenantRequest) (*domain.Tenant, error) {
	if err := s.policy.CanManageTenants(ctx, actor, security.OpUpdateTenant); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.SubscriptionStatus != nil {
		t.SubscriptionStatus = *req.SubscriptionStatus
	}
	if req.NextBillingDate != nil {
		t.NextBillingDate = req.NextBillingDate
	}
	if req.SubscriptionPlan != nil && *req.SubscriptionPlan != t.SubscriptionPlan {
		s.logger.Info("tenant plan changed",
			slog.String("tenant_id", t.ID),
			slog.String("from", string(t.SubscriptionPlan)),
			slog.String("to", string(*req.SubscriptionPlan)),
		)
		t.ApplyPlan(*req.SubscriptionPlan)
	}

	if err := s.tenants.Update(ctx, t); err != nil {
		return nil, conflictError(err)
	}
	s.audit.LogSuccess(ctx, actor, "update", "tenant", t.ID)
	return t.Redacted(), nil
}

// Delete removes a tenant that no longer has users. Users are never removed
// as a side effect.
func (s *TenantService) Delete(ctx context.Context, actor *domain.Principal, id string) error {
	if err := s.policy.CanManageTenants(ctx, actor, security.OpDeleteTenant); err != nil {
		return err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.tenants.GetByID(ctx, id)
		if err != nil {
			return err
		}
		members, err := s.users.ListByTenant(ctx, t.ID)
		if err != nil {
			return err
		}
		if len(members) > 0 {
			return domain.NewValidationError("tenant still has users",
				fmt.Sprintf("%d users reference this tenant; reassign or delete them first", len(members)))
		}
		return s.tenants.Delete(ctx, t.ID)
	})
	if err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, actor, "delete", "tenant", domain.NormalizeID(id))
	s.logger.Info("tenant deleted", slog.String("tenant_id", domain.NormalizeID(id)))
	return nil
}

func (s *TenantService) UpdateSMTP(ctx context.Context, actor *domain.Principal, id string, req SMTPRequest) (*domain.Tenant, error) {
	if err := s.policy.CanUpdateSMTP(ctx, actor, id); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	password := req.Password
	if password == "" {
		password = t.SMTPSettings.Password
	}
	t.SMTPSettings = domain.SMTPSettings{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: password,
		From:     req.From,
		UseTLS:   req.UseTLS,
	}
	if err := s.tenants.Update(ctx, t); err != nil {
		return nil, err
	}
	s.audit.LogSuccess(ctx, actor, "update_smtp", "tenant", t.ID)
	return t.Redacted(), nil
}

func (s *TenantService) UpdateStripe(ctx context.Context, actor *domain.Principal, id string, req StripeRequest) (*domain.Tenant, error) {
	if err := s.policy.CanUpdateStripe(ctx, actor); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	secret := req.SecretKey
	if secret == "" {
		secret = t.StripeSettings.SecretKey
	}
	t.StripeSettings = domain.StripeSettings{
		PublishableKey: req.PublishableKey,
		SecretKey:      secret,
		CustomerID:     req.CustomerID,
	}
	if err := s.tenants.Update(ctx, t); err != nil {
		return nil, err
	}
	s.audit.LogSuccess(ctx, actor, "update_stripe", "tenant", t.ID)
	return t.Redacted(), nil
}
