package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated actor attached to a request. It is always
// rebuilt from the stored user record, never from token claims alone.
type Principal struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	TenantID string `json:"tenantId,omitempty"` // "" means tenant-less
}

// HasTenant reports whether the principal belongs to a tenant.
func (p *Principal) HasTenant() bool {
	return p.TenantID != ""
}

// PrincipalCache is a short-lived cache of resolved principals keyed by user id.
type PrincipalCache interface {
	Get(ctx context.Context, userID string) (*Principal, bool)
	Set(ctx context.Context, p *Principal, ttl time.Duration)
	Invalidate(ctx context.Context, userID string)
}

// Transactor runs fn inside a single store transaction. Repositories called
// with the context passed to fn take part in that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewID returns a fresh identifier in canonical form.
func NewID() string {
	return uuid.NewString()
}

// NormalizeID returns the canonical string form of an identifier. UUIDs in any
// accepted encoding (braced, urn, upper case) collapse to the lower-case
// hyphenated form; anything else is trimmed and lower-cased.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return strings.ToLower(id)
}

// SameID reports whether two identifiers denote the same entity. Empty ids
// never match anything.
func SameID(a, b string) bool {
	na, nb := NormalizeID(a), NormalizeID(b)
	return na != "" && na == nb
}

// ValidID reports whether id parses as a UUID.
func ValidID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}
