package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/observability/metrics"
	"github.com/aryan0dhankhar/assettrack/internal/security/audit"
)

// Operation names a policy-gated action; used in logs, audit and metrics.
type Operation string

const (
	OpListTenants  Operation = "tenant.list"
	OpCreateTenant Operation = "tenant.create"
	OpReadTenant   Operation = "tenant.read"
	OpUpdateTenant Operation = "tenant.update"
	OpDeleteTenant Operation = "tenant.delete"
	OpUpdateSMTP   Operation = "tenant.smtp.update"
	OpUpdateStripe Operation = "tenant.stripe.update"
	OpListUsers    Operation = "user.list"
	OpCreateUser   Operation = "user.create"
	OpReadUser     Operation = "user.read"
	OpUpdateUser   Operation = "user.update"
	OpDeleteUser   Operation = "user.delete"
)

var (
	userManagers   = []domain.Role{domain.RoleTenantAdmin, domain.RoleAdmin, domain.RoleSuperAdmin}
	platformAdmins = []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin}
)

// UserChange lists the sensitive fields an update touches. Nil means unchanged.
type UserChange struct {
	Role     *domain.Role
	TenantID *string
}

// Policy is the per-operation rule table. Every check runs before any
// mutation; a denial is logged, audited and counted.
type Policy struct {
	guard  *Guard
	audit  *audit.Logger
	logger *slog.Logger
}

func NewPolicy(guard *Guard, auditLog *audit.Logger, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	return &Policy{guard: guard, audit: auditLog, logger: logger}
}

// CanManageTenants gates list/create/update/delete of tenants.
func (p *Policy) CanManageTenants(ctx context.Context, actor *domain.Principal, op Operation) error {
	return p.decide(ctx, actor, op, p.guard.RequireRole(actor, platformAdmins...))
}

// CanReadTenant lets members read their own tenant; admins read any.
func (p *Policy) CanReadTenant(ctx context.Context, actor *domain.Principal, tenantID string) error {
	return p.decide(ctx, actor, OpReadTenant, p.guard.RequireTenantMatch(actor, tenantID))
}

// CanUpdateSMTP gates the tenant mail settings.
func (p *Policy) CanUpdateSMTP(ctx context.Context, actor *domain.Principal, tenantID string) error {
	return p.decide(ctx, actor, OpUpdateSMTP,
		p.guard.RequireRole(actor, userManagers...),
		p.guard.RequireTenantMatch(actor, tenantID),
	)
}

// CanUpdateStripe gates the tenant billing settings.
func (p *Policy) CanUpdateStripe(ctx context.Context, actor *domain.Principal) error {
	return p.decide(ctx, actor, OpUpdateStripe, p.guard.RequireRole(actor, platformAdmins...))
}

// CanListUsers gates user listing; a non-empty tenantID scopes the listing.
func (p *Policy) CanListUsers(ctx context.Context, actor *domain.Principal, tenantID string) error {
	checks := []error{p.guard.RequireRole(actor, userManagers...)}
	if tenantID != "" {
		checks = append(checks, p.guard.RequireTenantMatch(actor, tenantID))
	}
	return p.decide(ctx, actor, OpListUsers, checks...)
}

// CanCreateUser gates creation of a user with role in tenantID ("" when the
// tenant is left to the provisioner).
func (p *Policy) CanCreateUser(ctx context.Context, actor *domain.Principal, role domain.Role, tenantID string) error {
	checks := []error{
		p.guard.RequireRole(actor, userManagers...),
		p.requireSuperAdminFor(actor, role),
	}
	if tenantID != "" {
		checks = append(checks, p.guard.RequireTenantMatch(actor, tenantID))
	}
	return p.decide(ctx, actor, OpCreateUser, checks...)
}

// CanReadUser lets anyone read themselves; managers read users of their tenant.
func (p *Policy) CanReadUser(ctx context.Context, actor *domain.Principal, target *domain.User) error {
	if actor != nil && domain.SameID(actor.UserID, target.ID) {
		return nil
	}
	return p.decide(ctx, actor, OpReadUser,
		p.guard.RequireRole(actor, userManagers...),
		p.guard.RequireTenantMatch(actor, target.Tenant()),
	)
}

// CanUpdateUser gates an update of target, including the field-level guards
// on role and tenant changes.
func (p *Policy) CanUpdateUser(ctx context.Context, actor *domain.Principal, target *domain.User, change UserChange) error {
	checks := []error{
		p.guard.RequireRole(actor, userManagers...),
		p.guard.RequireTenantMatch(actor, target.Tenant()),
		p.requireSuperAdminFor(actor, target.Role),
	}
	if change.Role != nil {
		checks = append(checks, p.requireSuperAdminFor(actor, *change.Role))
	}
	if change.TenantID != nil {
		checks = append(checks, p.guard.RequireTenantMatch(actor, *change.TenantID))
	}
	return p.decide(ctx, actor, OpUpdateUser, checks...)
}

// CanDeleteUser gates deletion of target. Deleting oneself is never allowed.
func (p *Policy) CanDeleteUser(ctx context.Context, actor *domain.Principal, target *domain.User) error {
	if actor != nil && domain.SameID(actor.UserID, target.ID) {
		return p.decide(ctx, actor, OpDeleteUser, fmt.Errorf("%w: cannot delete own account", domain.ErrForbidden))
	}
	return p.decide(ctx, actor, OpDeleteUser,
		p.guard.RequireRole(actor, userManagers...),
		p.requireSuperAdminFor(actor, target.Role),
		p.guard.RequireTenantMatch(actor, target.Tenant()),
	)
}

// requireSuperAdminFor refuses anyone but a superadmin when role is admin or
// superadmin: granting, creating or touching such accounts is reserved.
func (p *Policy) requireSuperAdminFor(actor *domain.Principal, role domain.Role) error {
	if !role.Privileged() {
		return nil
	}
	if actor != nil && actor.Role == domain.RoleSuperAdmin {
		return nil
	}
	return fmt.Errorf("%w: only a superadmin may manage %s accounts", domain.ErrForbidden, role)
}

// decide returns the first failed check, in order.
func (p *Policy) decide(ctx context.Context, actor *domain.Principal, op Operation, checks ...error) error {
	for _, err := range checks {
		if err == nil {
			continue
		}
		if errors.Is(err, domain.ErrForbidden) {
			p.deny(ctx, actor, op, err)
		}
		return err
	}
	return nil
}

func (p *Policy) deny(ctx context.Context, actor *domain.Principal, op Operation, err error) {
	attrs := []any{
		slog.String("operation", string(op)),
		slog.String("reason", err.Error()),
	}
	if actor != nil {
		attrs = append(attrs,
			slog.String("user_id", actor.UserID),
			slog.String("role", string(actor.Role)),
			slog.String("tenant_id", actor.TenantID),
		)
	}
	p.logger.Warn("access denied", attrs...)
	metrics.ObserveDenial(string(op))
	p.audit.LogDenied(ctx, actor, string(op), err.Error())
}
