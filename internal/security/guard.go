package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/observability/metrics"
	"github.com/aryan0dhankhar/assettrack/internal/security/auth"
)

// TokenVerifier verifies a session token and returns its claims.
type TokenVerifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// UserLookup fetches the current user record.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Guard resolves request principals and performs the role and tenant checks
// every tenant-scoped operation is built from.
type Guard struct {
	tokens   TokenVerifier
	users    UserLookup
	cache    domain.PrincipalCache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewGuard creates a guard without principal caching.
func NewGuard(tokens TokenVerifier, users UserLookup, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{tokens: tokens, users: users, logger: logger}
}

// WithCache enables principal caching for ttl. A nil cache or non-positive
// ttl leaves caching off.
func (g *Guard) WithCache(cache domain.PrincipalCache, ttl time.Duration) *Guard {
	if cache != nil && ttl > 0 {
		g.cache = cache
		g.cacheTTL = ttl
	}
	return g
}

// ResolvePrincipal verifies token and rebuilds the principal from the current
// user record. Token role and tenant claims are ignored.
func (g *Guard) ResolvePrincipal(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := g.tokens.ValidateToken(token)
	if err != nil {
		g.logger.Debug("token rejected", slog.String("error", err.Error()))
		metrics.ObservePrincipal("token", "rejected")
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}

	if g.cache != nil {
		if p, ok := g.cache.Get(ctx, claims.UserID); ok {
			metrics.ObservePrincipal("cache", "hit")
			return p, nil
		}
	}

	user, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			g.logger.Info("token references missing user", slog.String("user_id", claims.UserID))
			metrics.ObservePrincipal("store", "missing")
			return nil, fmt.Errorf("%w: user no longer exists", domain.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("resolve principal: %w", err)
	}

	p := user.Principal()
	metrics.ObservePrincipal("store", "hit")
	if g.cache != nil {
		g.cache.Set(ctx, p, g.cacheTTL)
	}
	return p, nil
}

// RequireRole passes when the principal holds one of allowed.
func (g *Guard) RequireRole(p *domain.Principal, allowed ...domain.Role) error {
	if p == nil {
		return fmt.Errorf("%w: no principal", domain.ErrUnauthenticated)
	}
	if slices.Contains(allowed, p.Role) {
		return nil
	}
	return fmt.Errorf("%w: role %s not permitted", domain.ErrForbidden, p.Role)
}

// RequireTenantMatch passes for admin and superadmin; everyone else must
// belong to targetTenantID. Ids are compared in canonical form.
func (g *Guard) RequireTenantMatch(p *domain.Principal, targetTenantID string) error {
	if p == nil {
		return fmt.Errorf("%w: no principal", domain.ErrUnauthenticated)
	}
	if p.Role.Privileged() {
		return nil
	}
	if domain.SameID(p.TenantID, targetTenantID) {
		return nil
	}
	return fmt.Errorf("%w: tenant mismatch", domain.ErrForbidden)
}

// Forget drops any cached principal for userID.
func (g *Guard) Forget(ctx context.Context, userID string) {
	if g.cache != nil {
		g.cache.Invalidate(ctx, userID)
	}
}
