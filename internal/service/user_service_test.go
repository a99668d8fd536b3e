package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
)

func createReq(username string, role domain.Role) CreateUserRequest {
	return CreateUserRequest{
		Username:        username,
		Email:           username + "@example.com",
		Password:        "Password123",
		ConfirmPassword: "Password123",
		FirstName:       "Test",
		LastName:        "User",
		Role:            role,
	}
}

func TestCreateUserInheritsCreatorTenant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenant := f.seedTenant("Acme", domain.PlanBasic)
	ta := f.seedUser("ta", domain.RoleTenantAdmin, tenant.ID)

	u, err := f.userSvc.Create(ctx, ta.Principal(), createReq("member", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.Equal(t, tenant.ID, u.Tenant())
	assert.Equal(t, 2, f.tenant(tenant.ID).UserCount)

	// a tenantadmin creating another tenantadmin stays inside its tenant
	u, err = f.userSvc.Create(ctx, ta.Principal(), createReq("co-admin", domain.RoleTenantAdmin))
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, u.Tenant())
	assert.Len(t, f.store.tenants, 1)
}

func TestCreateTenantAdminProvisionsTenant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.seedUser("admin", domain.RoleAdmin, "")

	u, err := f.userSvc.Create(ctx, admin.Principal(), createReq("founder", domain.RoleTenantAdmin))
	require.NoError(t, err)
	require.NotNil(t, u.TenantID)
	require.Len(t, f.store.tenants, 1)

	tenant := f.tenant(*u.TenantID)
	assert.Equal(t, domain.PlanBasic, tenant.SubscriptionPlan)
	assert.Equal(t, 5, tenant.UserLimit)
	assert.Equal(t, 100, tenant.AssetLimit)
	assert.Equal(t, 1, tenant.UserCount)
}

func TestCreateUserRollsBackProvisionedTenant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.seedUser("admin", domain.RoleAdmin, "")
	f.store.failUserCreate = errors.New("connection reset")

	_, err := f.userSvc.Create(ctx, admin.Principal(), createReq("founder", domain.RoleTenantAdmin))
	require.Error(t, err)
	assert.Empty(t, f.store.tenants)
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.seedUser("admin", domain.RoleSuperAdmin, "")

	req := createReq("mismatch", domain.RoleTenantAdmin)
	req.ConfirmPassword = "different"
	_, err := f.userSvc.Create(ctx, admin.Principal(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, f.store.tenants, "mismatched passwords must fail before provisioning")

	req = createReq("admin", domain.RoleSuperAdmin)
	_, err = f.userSvc.Create(ctx, admin.Principal(), req)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"username already exists"}, verr.Errors)

	req = createReq("bad-role", "owner")
	_, err = f.userSvc.Create(ctx, admin.Principal(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateUserRejectsOverlongPassword(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := f.seedTenant("T1", domain.PlanBasic)
	admin := f.seedUser("admin", domain.RoleAdmin, "")

	for name, password := range map[string]string{
		"ascii":     strings.Repeat("a", 80),
		"multibyte": strings.Repeat("é", 40),
	} {
		t.Run(name, func(t *testing.T) {
			req := createReq("long-"+name, domain.RoleUser)
			req.TenantID = strPtr(t1.ID)
			req.Password = password
			req.ConfirmPassword = password

			_, err := f.userSvc.Create(ctx, admin.Principal(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, 0, f.tenant(t1.ID).UserCount)
		})
	}

	long := strings.Repeat("a", 73)
	_, err := f.userSvc.Update(ctx, admin.Principal(), admin.ID, UpdateUserRequest{Password: &long})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "password must be at most 72 characters")
}

func TestCreateUserPolicy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := f.seedTenant("T1", domain.PlanBasic)
	t2 := f.seedTenant("T2", domain.PlanBasic)
	ta := f.seedUser("ta", domain.RoleTenantAdmin, t1.ID)
	plain := f.seedUser("plain", domain.RoleUser, t1.ID)

	req := createReq("elsewhere", domain.RoleUser)
	req.TenantID = strPtr(t2.ID)
	_, err := f.userSvc.Create(ctx, ta.Principal(), req)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.userSvc.Create(ctx, ta.Principal(), createReq("boss", domain.RoleSuperAdmin))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.userSvc.Create(ctx, plain.Principal(), createReq("friend", domain.RoleUser))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Equal(t, 0, f.tenant(t2.ID).UserCount)
	assert.Zero(t, f.tx.calls, "denied requests never open a transaction")
}

func TestCreateUserInvalidTenant(t *testing.T) {
	f := newFixture()
	admin := f.seedUser("admin", domain.RoleAdmin, "")
	req := createReq("lost", domain.RoleUser)
	req.TenantID = strPtr(domain.NewID())

	_, err := f.userSvc.Create(context.Background(), admin.Principal(), req)
	assert.ErrorIs(t, err, domain.ErrTenantResolution)
}

func TestUserCountTracksCreatesAndDeletes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tenant := f.seedTenant("Acme", domain.PlanEnterprise)
	ta := f.seedUser("ta", domain.RoleTenantAdmin, tenant.ID)

	var created []*domain.User
	for _, name := range []string{"u1", "u2", "u3", "u4"} {
		u, err := f.userSvc.Create(ctx, ta.Principal(), createReq(name, domain.RoleUser))
		require.NoError(t, err)
		created = append(created, u)
	}
	require.NoError(t, f.userSvc.Delete(ctx, ta.Principal(), created[0].ID))
	require.NoError(t, f.userSvc.Delete(ctx, ta.Principal(), created[1].ID))

	// seeded tenantadmin + 4 created - 2 deleted
	assert.Equal(t, 3, f.tenant(tenant.ID).UserCount)
	assert.ElementsMatch(t, []string{created[0].ID, created[1].ID}, f.invalidator.forgotten)
}

func TestDeleteUserPolicy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := f.seedTenant("T1", domain.PlanBasic)
	admin := f.seedUser("admin", domain.RoleAdmin, "")
	root := f.seedUser("root", domain.RoleSuperAdmin, "")
	ta := f.seedUser("ta", domain.RoleTenantAdmin, t1.ID)

	assert.ErrorIs(t, f.userSvc.Delete(ctx, ta.Principal(), ta.ID), domain.ErrForbidden)
	assert.ErrorIs(t, f.userSvc.Delete(ctx, root.Principal(), root.ID), domain.ErrForbidden)
	assert.ErrorIs(t, f.userSvc.Delete(ctx, admin.Principal(), root.ID), domain.ErrForbidden)
	assert.ErrorIs(t, f.userSvc.Delete(ctx, ta.Principal(), admin.ID), domain.ErrForbidden)
	assert.ErrorIs(t, f.userSvc.Delete(ctx, admin.Principal(), domain.NewID()), domain.ErrNotFound)

	require.NoError(t, f.userSvc.Delete(ctx, root.Principal(), admin.ID))
	assert.Equal(t, 1, f.tenant(t1.ID).UserCount)
}

func TestUpdateUserAcrossTenants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := f.seedTenant("T1", domain.PlanBasic)
	t2 := f.seedTenant("T2", domain.PlanBasic)
	member := f.seedUser("member", domain.RoleUser, t1.ID)
	target := f.seedUser("target", domain.RoleUser, t2.ID)
	ta := f.seedUser("ta", domain.RoleTenantAdmin, t1.ID)
	admin := f.seedUser("admin", domain.RoleAdmin, "")

	req := UpdateUserRequest{FirstName: strPtr("Renamed")}
	_, err := f.userSvc.Update(ctx, member.Principal(), target.ID, req)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.userSvc.Update(ctx, ta.Principal(), target.ID, req)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	updated, err := f.userSvc.Update(ctx, admin.Principal(), target.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.FirstName)
	assert.Contains(t, f.invalidator.forgotten, target.ID)
}

func TestUpdateUserRoleGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := f.seedTenant("T1", domain.PlanBasic)
	ta := f.seedUser("ta", domain.RoleTenantAdmin, t1.ID)
	peer := f.seedUser("peer", domain.RoleUser, t1.ID)
	root := f.seedUser("root", domain.RoleSuperAdmin, "")

	_, err := f.userSvc.Update(ctx, ta.Principal(), peer.ID, UpdateUserRequest{Role: rolePtr(domain.RoleAdmin)})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	updated, err := f.userSvc.Update(ctx, ta.Principal(), peer.ID, UpdateUserRequest{Role: rolePtr(domain.RoleTenantAdmin)})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTenantAdmin, updated.Role)

	updated, err = f.userSvc.Update(ctx, root.Principal(), peer.ID, UpdateUserRequest{Role: rolePtr(domain.RoleAdmin)})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, updated.Role)

	// now privileged, the tenantadmin can no longer touch it
	_, err = f.userSvc.Update(ctx, ta.Principal(), peer.ID, UpdateUserRequest{FirstName: strPtr("x")})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdateUserMovesTenantCount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := f.seedTenant("T1", domain.PlanBasic)
	t2 := f.seedTenant("T2", domain.PlanBasic)
	mover := f.seedUser("mover", domain.RoleUser, t1.ID)
	admin := f.seedUser("admin", domain.RoleAdmin, "")

	updated, err := f.userSvc.Update(ctx, admin.Principal(), mover.ID, UpdateUserRequest{TenantID: strPtr(t2.ID)})
	require.NoError(t, err)
	assert.Equal(t, t2.ID, updated.Tenant())
	assert.Equal(t, 0, f.tenant(t1.ID).UserCount)
	assert.Equal(t, 1, f.tenant(t2.ID).UserCount)

	_, err = f.userSvc.Update(ctx, admin.Principal(), mover.ID, UpdateUserRequest{TenantID: strPtr(domain.NewID())})
	assert.ErrorIs(t, err, domain.ErrTenantResolution)
	assert.Equal(t, 1, f.tenant(t2.ID).UserCount)

	_, err = f.userSvc.Update(ctx, admin.Principal(), mover.ID, UpdateUserRequest{TenantID: strPtr("")})
	assert.ErrorIs(t, err, domain.ErrValidation, "regular users must keep a tenant")
}

func TestUpdateUserTenantLookupFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := f.seedTenant("T1", domain.PlanBasic)
	t2 := f.seedTenant("T2", domain.PlanBasic)
	mover := f.seedUser("mover", domain.RoleUser, t1.ID)
	admin := f.seedUser("admin", domain.RoleAdmin, "")
	f.store.failTenantGet = errors.New("connection reset")

	_, err := f.userSvc.Update(ctx, admin.Principal(), mover.ID, UpdateUserRequest{TenantID: strPtr(t2.ID)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTenantResolution)
	assert.NotErrorIs(t, err, domain.ErrValidation)
	assert.ErrorContains(t, err, "connection reset")

	f.store.failTenantGet = nil
	assert.Equal(t, 1, f.tenant(t1.ID).UserCount)
	stored := f.store.users[mover.ID]
	assert.Equal(t, t1.ID, stored.Tenant())
}

func TestListUsersScoping(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := f.seedTenant("T1", domain.PlanBasic)
	t2 := f.seedTenant("T2", domain.PlanBasic)
	ta := f.seedUser("ta", domain.RoleTenantAdmin, t1.ID)
	f.seedUser("a", domain.RoleUser, t1.ID)
	f.seedUser("b", domain.RoleUser, t2.ID)
	admin := f.seedUser("admin", domain.RoleAdmin, "")

	own, err := f.userSvc.List(ctx, ta.Principal(), "")
	require.NoError(t, err)
	assert.Len(t, own, 2)

	_, err = f.userSvc.List(ctx, ta.Principal(), t2.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, err := f.userSvc.List(ctx, admin.Principal(), "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	filtered, err := f.userSvc.List(ctx, admin.Principal(), t2.ID)
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	t1 := f.seedTenant("T1", domain.PlanBasic)
	u := f.seedUser("self", domain.RoleUser, t1.ID)

	me, err := f.userSvc.Me(ctx, u.Principal())
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)

	got, err := f.userSvc.Get(ctx, u.Principal(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	updated, err := f.userSvc.UpdateProfile(ctx, u.Principal(), UpdateProfileRequest{LastName: strPtr("Changed")})
	require.NoError(t, err)
	assert.Equal(t, "Changed", updated.LastName)
	assert.Equal(t, domain.RoleUser, updated.Role)

	_, err = f.userSvc.UpdateProfile(ctx, u.Principal(), UpdateProfileRequest{Email: strPtr("not-an-email")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
