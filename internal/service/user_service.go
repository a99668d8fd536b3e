package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/security"
	"github.com/aryan0dhankhar/assettrack/internal/security/audit"
	"github.com/aryan0dhankhar/assettrack/internal/security/auth"
)

// CreateUserRequest is the body of a user creation call.
type CreateUserRequest struct {
	Username        string      `json:"username" validate:"required,min=3,max=50"`
	Email           string      `json:"email" validate:"required,email"`
	Password        string      `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string      `json:"confirmPassword" validate:"required,eqfield=Password"`
	FirstName       string      `json:"firstName" validate:"max=100"`
	LastName        string      `json:"lastName" validate:"max=100"`
	Role            domain.Role `json:"role" validate:"omitempty,oneof=user tenantadmin admin superadmin"`
	TenantID        *string     `json:"tenantId,omitempty"`
}

// UpdateUserRequest carries the fields to change; nil fields are left alone.
// An empty tenantId detaches the user from its tenant.
type UpdateUserRequest struct {
	Email     *string      `json:"email,omitempty" validate:"omitempty,email"`
	FirstName *string      `json:"firstName,omitempty" validate:"omitempty,max=100"`
	LastName  *string      `json:"lastName,omitempty" validate:"omitempty,max=100"`
	Role      *domain.Role `json:"role,omitempty" validate:"omitempty,oneof=user tenantadmin admin superadmin"`
	TenantID  *string      `json:"tenantId,omitempty"`
	Password  *string      `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
}

// UpdateProfileRequest is the self-service subset of UpdateUserRequest.
type UpdateProfileRequest struct {
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	FirstName *string `json:"firstName,omitempty" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName,omitempty" validate:"omitempty,max=100"`
}

// UserService runs policy-gated user CRUD.
type UserService struct {
	users       domain.UserRepository
	tenants     domain.TenantRepository
	tx          domain.Transactor
	provisioner *Provisioner
	policy      *security.Policy
	principals  PrincipalInvalidator
	hasher      *auth.PasswordHasher
	audit       *audit.Logger
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewUserService(
	users domain.UserRepository,
	tenants domain.TenantRepository,
	tx domain.Transactor,
	provisioner *Provisioner,
	policy *security.Policy,
	principals PrincipalInvalidator,
	hasher *auth.PasswordHasher,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	if principals == nil {
		principals = noopInvalidator{}
	}
	return &UserService{
		users:       users,
		tenants:     tenants,
		tx:          tx,
		provisioner: provisioner,
		policy:      policy,
		principals:  principals,
		hasher:      hasher,
		audit:       auditLog,
		validate:    newValidator(),
		logger:      logger,
	}
}

// List returns the users the actor may see. Platform admins see everyone
// unless tenantFilter narrows it; tenant admins only ever see their tenant.
func (s *UserService) List(ctx context.Context, actor *domain.Principal, tenantFilter string) ([]*domain.User, error) {
	scope := tenantFilter
	if actor != nil && !actor.Role.Privileged() && scope == "" {
		scope = actor.TenantID
	}
	if err := s.policy.CanListUsers(ctx, actor, scope); err != nil {
		return nil, err
	}
	if scope == "" {
		return s.users.List(ctx)
	}
	return s.users.ListByTenant(ctx, scope)
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, actor *domain.Principal, id string) (*domain.User, error) {
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanReadUser(ctx, actor, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Create provisions the tenant, inserts the user and bumps the tenant's
// counter in one transaction.
func (s *UserService) Create(ctx context.Context, actor *domain.Principal, req CreateUserRequest) (*domain.User, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = domain.RoleUser
	}
	// Tenant-scoped creators always create into their own tenant.
	if actor != nil && !actor.Role.Privileged() && req.TenantID == nil && actor.HasTenant() {
		own := actor.TenantID
		req.TenantID = &own
	}

	requested := ""
	if req.TenantID != nil {
		requested = *req.TenantID
	}
	if err := s.policy.CanCreateUser(ctx, actor, req.Role, requested); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, err
	}

	user := &domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		tenantID, err := s.provisioner.ResolveTenantForNewUser(ctx, NewUserData{
			Username: req.Username,
			Role:     req.Role,
			TenantID: req.TenantID,
		}, actor)
		if err != nil {
			return err
		}
		user.TenantID = tenantID
		if err := s.users.Create(ctx, user); err != nil {
			return conflictError(err)
		}
		return s.provisioner.AdjustUserCount(ctx, user.TenantID, 1)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogSuccess(ctx, actor, "create", "user", user.ID)
	s.logger.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
		slog.String("tenant_id", user.Tenant()),
	)
	return user, nil
}

// Update applies req to the user with id. Moving a user to another tenant
// moves its membership count in the same transaction.
func (s *UserService) Update(ctx context.Context, actor *domain.Principal, id string, req UpdateUserRequest) (*domain.User, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	change := security.UserChange{}
	if req.Role != nil && *req.Role != target.Role {
		change.Role = req.Role
	}
	var newTenant *string
	tenantChanged := false
	if req.TenantID != nil {
		normalized := domain.NormalizeID(*req.TenantID)
		if normalized != target.Tenant() {
			tenantChanged = true
			if normalized != "" {
				newTenant = &normalized
				change.TenantID = newTenant
			}
		}
	}
	if err := s.policy.CanUpdateUser(ctx, actor, target, change); err != nil {
		return nil, err
	}

	oldTenant := target.TenantID
	if req.Email != nil {
		target.Email = *req.Email
	}
	if req.FirstName != nil {
		target.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		target.LastName = *req.LastName
	}
	if change.Role != nil {
		target.Role = *change.Role
	}
	if tenantChanged {
		target.TenantID = newTenant
	}
	if req.Password != nil {
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return nil, err
		}
		target.PasswordHash = hash
	}
	if !target.Role.Privileged() && target.TenantID == nil {
		return nil, domain.NewValidationError("validation failed",
			fmt.Sprintf("tenantId is required for role %s", target.Role))
	}
	if target.Role == domain.RoleSuperAdmin && target.TenantID != nil {
		return nil, domain.NewValidationError("validation failed", "superadmin accounts cannot belong to a tenant")
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if tenantChanged && newTenant != nil {
			if _, err := s.tenants.GetByID(ctx, *newTenant); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("%w: invalid tenant", domain.ErrTenantResolution)
				}
				return fmt.Errorf("load tenant: %w", err)
			}
		}
		if err := s.users.Update(ctx, target); err != nil {
			return conflictError(err)
		}
		if !tenantChanged {
			return nil
		}
		if err := s.provisioner.AdjustUserCount(ctx, oldTenant, -1); err != nil {
			return err
		}
		return s.provisioner.AdjustUserCount(ctx, newTenant, 1)
	})
	if err != nil {
		return nil, err
	}

	s.principals.Forget(ctx, target.ID)
	s.audit.LogSuccess(ctx, actor, "update", "user", target.ID)
	return target, nil
}

// Delete removes the user and decrements its tenant's counter in one
// transaction.
func (s *UserService) Delete(ctx context.Context, actor *domain.Principal, id string) error {
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.CanDeleteUser(ctx, actor, target); err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Delete(ctx, target.ID); err != nil {
			return err
		}
		return s.provisioner.AdjustUserCount(ctx, target.TenantID, -1)
	})
	if err != nil {
		return err
	}

	s.principals.Forget(ctx, target.ID)
	s.audit.LogSuccess(ctx, actor, "delete", "user", target.ID)
	s.logger.Info("user deleted",
		slog.String("user_id", target.ID),
		slog.String("tenant_id", target.Tenant()),
	)
	return nil
}

// Me returns the actor's own record.
func (s *UserService) Me(ctx context.Context, actor *domain.Principal) (*domain.User, error) {
	return s.users.GetByID(ctx, actor.UserID)
}

// UpdateProfile lets any user change their own name and email.
func (s *UserService) UpdateProfile(ctx context.Context, actor *domain.Principal, req UpdateProfileRequest) (*domain.User, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, conflictError(err)
	}
	s.audit.LogSuccess(ctx, actor, "update_profile", "user", user.ID)
	return user, nil
}

type noopInvalidator struct{}

func (noopInvalidator) Forget(context.Context, string) {}
