package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/featureflags"
)

func TestLogin(t *testing.T) {
	f := newFixture()
	tenant := f.seedTenant("Acme", domain.PlanBasic)
	alice := f.seedUser("alice", domain.RoleTenantAdmin, tenant.ID)
	ctx := context.Background()

	res, err := f.authSvc.Login(ctx, "alice", "Password123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, alice.ID, res.User.ID)

	claims, err := f.tokens.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)
	assert.Equal(t, "tenantadmin", claims.Role)
	assert.Equal(t, tenant.ID, claims.TenantID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture()
	f.seedUser("bob", domain.RoleSuperAdmin, "")
	ctx := context.Background()

	_, wrongPassword := f.authSvc.Login(ctx, "bob", "not-the-password")
	_, unknownUser := f.authSvc.Login(ctx, "nobody", "Password123")
	_, empty := f.authSvc.Login(ctx, "", "")

	assert.ErrorIs(t, wrongPassword, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, empty, domain.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestRegister(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := RegisterRequest{
		Username:         "carol",
		Email:            "carol@example.com",
		Password:         "Password123",
		ConfirmPassword:  "Password123",
		OrganizationName: "Carol Co",
	}

	_, err := f.authSvc.Register(ctx, req)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	f.flags[featureflags.PublicRegistration] = true
	res, err := f.authSvc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTenantAdmin, res.User.Role)
	require.NotNil(t, res.User.TenantID)

	tenant := f.tenant(*res.User.TenantID)
	assert.Equal(t, "Carol Co", tenant.Name)
	assert.Equal(t, domain.PlanBasic, tenant.SubscriptionPlan)
	assert.Equal(t, 1, tenant.UserCount)
	assert.Equal(t, 5, tenant.UserLimit)

	_, err = f.authSvc.Register(ctx, req)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "username already exists")
	assert.Len(t, f.store.tenants, 1, "duplicate signup must not leave a tenant behind")
}

func TestRegisterRequiresMatchingPasswords(t *testing.T) {
	f := newFixture()
	f.flags[featureflags.PublicRegistration] = true

	_, err := f.authSvc.Register(context.Background(), RegisterRequest{
		Username: "dave", Email: "dave@example.com", Password: "Password123", ConfirmPassword: "Password124",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "confirmPassword must match password")
	assert.Empty(t, f.store.tenants)
}

func TestChangePassword(t *testing.T) {
	f := newFixture()
	u := f.seedUser("erin", domain.RoleSuperAdmin, "")
	ctx := context.Background()

	err := f.authSvc.ChangePassword(ctx, u.Principal(), "wrong", "NewPassword1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = f.authSvc.ChangePassword(ctx, u.Principal(), "Password123", "short")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = f.authSvc.ChangePassword(ctx, u.Principal(), "Password123", strings.Repeat("x", 73))
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, f.authSvc.ChangePassword(ctx, u.Principal(), "Password123", "NewPassword1"))
	_, err = f.authSvc.Login(ctx, "erin", "NewPassword1")
	assert.NoError(t, err)
}
