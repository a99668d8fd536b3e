package domain

import (
	"context"
	"time"
)

// Plan identifies the subscription tier of a tenant.
type Plan string

const (
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// SubscriptionStatus is the billing state of a tenant.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusTrial     SubscriptionStatus = "trial"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Unlimited marks a limit with no upper bound.
const Unlimited = -1

// Limits holds the resource caps derived from a plan.
type Limits struct {
	Users  int
	Assets int
}

var planLimits = map[Plan]Limits{
	PlanBasic:      {Users: 5, Assets: 100},
	PlanPro:        {Users: 20, Assets: 1000},
	PlanEnterprise: {Users: Unlimited, Assets: Unlimited},
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := planLimits[p]
	return ok
}

// Limits returns the fixed limits for the plan. Unknown plans get basic limits.
func (p Plan) Limits() Limits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanBasic]
}

// Valid reports whether s is a known subscription status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusTrial, StatusPastDue, StatusCancelled:
		return true
	}
	return false
}

// SMTPSettings configures outbound mail for a tenant.
type SMTPSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
	UseTLS   bool   `json:"useTls"`
}

// StripeSettings holds billing integration keys for a tenant.
type StripeSettings struct {
	PublishableKey string `json:"publishableKey"`
	SecretKey      string `json:"secretKey,omitempty"`
	CustomerID     string `json:"customerId"`
}

// Tenant represents an organization/tenant
type Tenant struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	SubscriptionPlan   Plan               `json:"subscriptionPlan"`
	UserCount          int                `json:"userCount"`
	AssetCount         int                `json:"assetCount"`
	UserLimit          int                `json:"userLimit"`
	AssetLimit         int                `json:"assetLimit"`
	NextBillingDate    *time.Time         `json:"nextBillingDate"`
	SMTPSettings       SMTPSettings       `json:"smtpSettings"`
	StripeSettings     StripeSettings     `json:"stripeSettings"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// ApplyPlan sets the plan and recomputes the derived limits.
func (t *Tenant) ApplyPlan(p Plan) {
	t.SubscriptionPlan = p
	l := p.Limits()
	t.UserLimit = l.Users
	t.AssetLimit = l.Assets
}

// UserCapacityReached reports whether the tenant is at or above its user limit.
func (t *Tenant) UserCapacityReached() bool {
	return t.UserLimit != Unlimited && t.UserCount >= t.UserLimit
}

// Redacted returns a copy without write-only secrets.
func (t *Tenant) Redacted() *Tenant {
	c := *t
	c.SMTPSettings.Password = ""
	c.StripeSettings.SecretKey = ""
	return &c
}

// TenantRepository defines data access for tenants
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Tenant, error)
	AdjustUserCount(ctx context.Context, id string, delta int) error
	// RecountUsers rewrites the user counter from live membership under the
	// tenant row lock and reports the stored and live values it saw.
	RecountUsers(ctx context.Context, id string) (stored, live int, err error)
}
