package domain

import (
	"context"
	"time"
)

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleUser        Role = "user"
	RoleTenantAdmin Role = "tenantadmin"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "superadmin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTenantAdmin, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Privileged reports whether the role is platform-wide (admin or superadmin).
// Privileged roles may be tenant-less and bypass tenant-match checks.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User represents a system user
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Role         Role      `json:"role"`
	TenantID     *string   `json:"tenantId"` // nil for tenant-less admins
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Tenant returns the canonical tenant id or "" when the user has none.
func (u *User) Tenant() string {
	if u.TenantID == nil {
		return ""
	}
	return NormalizeID(*u.TenantID)
}

// Principal builds the request principal from the stored record.
func (u *User) Principal() *Principal {
	return &Principal{
		UserID:   NormalizeID(u.ID),
		Username: u.Username,
		Role:     u.Role,
		TenantID: u.Tenant(),
	}
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*User, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*User, error)
	CountByTenant(ctx context.Context) (map[string]int, error)
}
