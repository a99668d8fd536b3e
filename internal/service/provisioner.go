package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/featureflags"
	"github.com/aryan0dhankhar/assettrack/internal/observability/metrics"
)

// FlagSource reports whether a named feature flag is on.
type FlagSource interface {
	Enabled(name string) bool
}

// NewUserData is what the provisioner needs to know about a user being created.
type NewUserData struct {
	Username string
	Role     domain.Role
	TenantID *string
	// TenantName names an implicitly created tenant. Empty means
	// "<username>'s organization".
	TenantName string
}

// Provisioner assigns a tenant to new users, creating one when needed, and
// maintains the tenant membership counter.
type Provisioner struct {
	tenants domain.TenantRepository
	flags   FlagSource
	logger  *slog.Logger
	now     func() time.Time
}

func NewProvisioner(tenants domain.TenantRepository, flags FlagSource, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{tenants: tenants, flags: flags, logger: logger, now: time.Now}
}

// ResolveTenantForNewUser returns the tenant the new user belongs to, or nil
// for tenant-less platform roles. Run it inside the transaction that inserts
// the user so an implicitly created tenant shares its fate.
func (p *Provisioner) ResolveTenantForNewUser(ctx context.Context, data NewUserData, creator *domain.Principal) (*string, error) {
	explicit := ""
	if data.TenantID != nil {
		explicit = domain.NormalizeID(*data.TenantID)
	}

	switch {
	case data.Role == domain.RoleSuperAdmin:
		return nil, nil

	case explicit != "":
		if _, err := p.tenants.GetByID(ctx, explicit); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: invalid tenant", domain.ErrTenantResolution)
			}
			return nil, fmt.Errorf("resolve tenant: %w", err)
		}
		if err := p.ensureCapacity(ctx, explicit); err != nil {
			return nil, err
		}
		return &explicit, nil

	case data.Role == domain.RoleTenantAdmin:
		id, err := p.createTenant(ctx, data)
		if err != nil {
			return nil, err
		}
		return &id, nil

	case data.Role == domain.RoleAdmin:
		return nil, nil
	}

	if creator == nil || !creator.HasTenant() {
		return nil, fmt.Errorf("%w: creator has no tenant", domain.ErrTenantResolution)
	}
	id := domain.NormalizeID(creator.TenantID)
	if err := p.ensureCapacity(ctx, id); err != nil {
		return nil, err
	}
	return &id, nil
}

// AdjustUserCount applies delta to the tenant's user counter. A nil or empty
// tenant id is a no-op.
func (p *Provisioner) AdjustUserCount(ctx context.Context, tenantID *string, delta int) error {
	if tenantID == nil || *tenantID == "" || delta == 0 {
		return nil
	}
	if err := p.tenants.AdjustUserCount(ctx, *tenantID, delta); err != nil {
		p.logger.Error("failed to adjust tenant user count",
			slog.String("tenant_id", *tenantID),
			slog.Int("delta", delta),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("adjust user count: %w", err)
	}
	return nil
}

func (p *Provisioner) createTenant(ctx context.Context, data NewUserData) (string, error) {
	name := data.TenantName
	if name == "" {
		name = data.Username + "'s organization"
	}
	next := p.now().AddDate(0, 1, 0)
	t := &domain.Tenant{
		Name:               name,
		SubscriptionStatus: domain.StatusActive,
		NextBillingDate:    &next,
	}
	t.ApplyPlan(domain.PlanBasic)

	if err := p.tenants.Create(ctx, t); err != nil {
		return "", fmt.Errorf("%w: create tenant: %w", domain.ErrTenantResolution, err)
	}
	metrics.ObserveTenantProvisioned("implicit")
	p.logger.Info("tenant provisioned",
		slog.String("tenant_id", t.ID),
		slog.String("name", t.Name),
		slog.String("for_user", data.Username),
	)
	return domain.NormalizeID(t.ID), nil
}

func (p *Provisioner) ensureCapacity(ctx context.Context, tenantID string) error {
	if p.flags == nil || !p.flags.Enabled(featureflags.EnforceUserLimit) {
		return nil
	}
	t, err := p.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("check tenant capacity: %w", err)
	}
	if t.UserCapacityReached() {
		return domain.NewValidationError("tenant user limit reached",
			fmt.Sprintf("plan %s allows %d users", t.SubscriptionPlan, t.UserLimit))
	}
	return nil
}
