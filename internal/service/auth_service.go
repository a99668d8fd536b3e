package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/featureflags"
	"github.com/aryan0dhankhar/assettrack/internal/observability/metrics"
	"github.com/aryan0dhankhar/assettrack/internal/security/auth"
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	GenerateToken(userID, role, tenantID string) (string, time.Time, error)
}

// PrincipalInvalidator drops cached principals after a user record changes.
type PrincipalInvalidator interface {
	Forget(ctx context.Context, userID string)
}

// AuthService handles authentication operations
type AuthService struct {
	users       domain.UserRepository
	tx          domain.Transactor
	provisioner *Provisioner
	hasher      *auth.PasswordHasher
	tokens      TokenIssuer
	flags       FlagSource
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users domain.UserRepository,
	tx domain.Transactor,
	provisioner *Provisioner,
	hasher *auth.PasswordHasher,
	tokens TokenIssuer,
	flags FlagSource,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		users:       users,
		tx:          tx,
		provisioner: provisioner,
		hasher:      hasher,
		tokens:      tokens,
		flags:       flags,
		validate:    newValidator(),
		logger:      logger,
	}
}

// RegisterRequest is a self-service signup: a new tenant and its first admin.
type RegisterRequest struct {
	Username         string `json:"username" validate:"required,min=3,max=50"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword  string `json:"confirmPassword" validate:"required,eqfield=Password"`
	FirstName        string `json:"firstName" validate:"max=100"`
	LastName         string `json:"lastName" validate:"max=100"`
	OrganizationName string `json:"organizationName" validate:"max=200"`
}

// LoginResult represents login response
type LoginResult struct {
	Token     string       `json:"token"`
	TokenType string       `json:"tokenType"`
	ExpiresAt time.Time    `json:"expiresAt"`
	ExpiresIn int          `json:"expiresIn"` // seconds
	User      *domain.User `json:"user"`
}

// Login verifies username and password and issues a session token. Unknown
// usernames and wrong passwords fail identically.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		metrics.ObserveLogin(false)
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.CompareDummy(password)
			s.logger.Info("login failed", slog.String("username", username), slog.String("reason", "unknown user"))
			metrics.ObserveLogin(false)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed", slog.String("username", username), slog.String("reason", "password mismatch"))
		metrics.ObserveLogin(false)
		return nil, domain.ErrInvalidCredentials
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	metrics.ObserveLogin(true)
	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return result, nil
}

// Register creates a tenant and its tenantadmin in one transaction.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	if s.flags == nil || !s.flags.Enabled(featureflags.PublicRegistration) {
		return nil, fmt.Errorf("%w: public registration is disabled", domain.ErrForbidden)
	}
	if err := validateStruct(s.validate, req); err != nil {
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
		Role:         domain.RoleTenantAdmin,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		tenantID, err := s.provisioner.ResolveTenantForNewUser(ctx, NewUserData{
			Username:   req.Username,
			Role:       domain.RoleTenantAdmin,
			TenantName: req.OrganizationName,
		}, nil)
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

	s.logger.Info("tenant registered",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.Tenant()),
	)
	return s.issue(user)
}

// ChangePassword changes the principal's own password after verifying the
// current one.
func (s *AuthService) ChangePassword(ctx context.Context, p *domain.Principal, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return domain.NewValidationError("validation failed", "newPassword must be at least 8 characters")
	}
	if len(newPassword) > auth.MaxPasswordBytes {
		return domain.NewValidationError("validation failed", "newPassword must be at most 72 bytes")
	}

	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.PasswordHash, oldPassword); err != nil {
		return domain.NewValidationError("validation failed", "current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.String("error", err.Error()))
		return err
	}

	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error("failed to update user password", slog.String("error", err.Error()))
		return fmt.Errorf("change password: %w", err)
	}

	s.logger.Info("user changed password", slog.String("user_id", user.ID))
	return nil
}

func (s *AuthService) issue(user *domain.User) (*LoginResult, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, string(user.Role), user.Tenant())
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResult{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		ExpiresIn: int(time.Until(expiresAt).Seconds()),
		User:      user,
	}, nil
}
