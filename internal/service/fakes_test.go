package service

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/featureflags"
	"github.com/aryan0dhankhar/assettrack/internal/security"
	"github.com/aryan0dhankhar/assettrack/internal/security/auth"
)

// memStore backs both fake repositories so memTx can snapshot and roll back
// users and tenants together.
type memStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	tenants map[string]domain.Tenant

	failUserCreate error
	failTenantGet  error
}

func newMemStore() *memStore {
	return &memStore{users: map[string]domain.User{}, tenants: map[string]domain.Tenant{}}
}

type memTx struct {
	store *memStore
	calls int
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	t.store.mu.Lock()
	users := maps.Clone(t.store.users)
	tenants := maps.Clone(t.store.tenants)
	t.store.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.store.mu.Lock()
		t.store.users = users
		t.store.tenants = tenants
		t.store.mu.Unlock()
		return err
	}
	return nil
}

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failUserCreate != nil {
		return r.s.failUserCreate
	}
	for _, existing := range r.s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("%w: users_username_key", domain.ErrConflict)
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("%w: users_email_key", domain.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = domain.NewID()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.s.users[u.ID] = *u
	return nil
}

func (r memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[domain.NormalizeID(id)]; ok {
		return &u, nil
	}
	return nil, fmt.Errorf("user %w", domain.ErrNotFound)
}

func (r memUserRepo) find(match func(domain.User) bool) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %w", domain.ErrNotFound)
}

func (r memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username })
}

func (r memUserRepo) Update(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return fmt.Errorf("user %w", domain.ErrNotFound)
	}
	u.UpdatedAt = time.Now()
	r.s.users[u.ID] = *u
	return nil
}

func (r memUserRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id = domain.NormalizeID(id)
	if _, ok := r.s.users[id]; !ok {
		return fmt.Errorf("user %w", domain.ErrNotFound)
	}
	delete(r.s.users, id)
	return nil
}

func (r memUserRepo) List(_ context.Context) ([]*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.User{}
	for _, u := range r.s.users {
		out = append(out, &u)
	}
	return out, nil
}

func (r memUserRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.User{}
	for _, u := range r.s.users {
		if domain.SameID(u.Tenant(), tenantID) {
			out = append(out, &u)
		}
	}
	return out, nil
}

func (r memUserRepo) CountByTenant(_ context.Context) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int{}
	for _, u := range r.s.users {
		if t := u.Tenant(); t != "" {
			counts[t]++
		}
	}
	return counts, nil
}

type memTenantRepo struct{ s *memStore }

func (r memTenantRepo) Create(_ context.Context, t *domain.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID == "" {
		t.ID = domain.NewID()
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.s.tenants[t.ID] = *t
	return nil
}

func (r memTenantRepo) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failTenantGet != nil {
		return nil, r.s.failTenantGet
	}
	if t, ok := r.s.tenants[domain.NormalizeID(id)]; ok {
		return &t, nil
	}
	return nil, fmt.Errorf("tenant %w", domain.ErrNotFound)
}

func (r memTenantRepo) Update(_ context.Context, t *domain.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tenants[t.ID]
	if !ok {
		return fmt.Errorf("tenant %w", domain.ErrNotFound)
	}
	updated := *t
	updated.UserCount = stored.UserCount
	updated.AssetCount = stored.AssetCount
	r.s.tenants[t.ID] = updated
	return nil
}

func (r memTenantRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id = domain.NormalizeID(id)
	if _, ok := r.s.tenants[id]; !ok {
		return fmt.Errorf("tenant %w", domain.ErrNotFound)
	}
	delete(r.s.tenants, id)
	return nil
}

func (r memTenantRepo) List(_ context.Context) ([]*domain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Tenant{}
	for _, t := range r.s.tenants {
		out = append(out, &t)
	}
	return out, nil
}

func (r memTenantRepo) AdjustUserCount(_ context.Context, id string, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id = domain.NormalizeID(id)
	t, ok := r.s.tenants[id]
	if !ok {
		return fmt.Errorf("tenant %w", domain.ErrNotFound)
	}
	t.UserCount = max(t.UserCount+delta, 0)
	r.s.tenants[id] = t
	return nil
}

func (r memTenantRepo) RecountUsers(_ context.Context, id string) (int, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id = domain.NormalizeID(id)
	t, ok := r.s.tenants[id]
	if !ok {
		return 0, 0, fmt.Errorf("tenant %w", domain.ErrNotFound)
	}
	stored, live := t.UserCount, 0
	for _, u := range r.s.users {
		if u.Tenant() == id {
			live++
		}
	}
	t.UserCount = live
	r.s.tenants[id] = t
	return stored, live, nil
}

type recordingInvalidator struct{ forgotten []string }

func (r *recordingInvalidator) Forget(_ context.Context, userID string) {
	r.forgotten = append(r.forgotten, userID)
}

// fixture wires the services over one in-memory store.
type fixture struct {
	store       *memStore
	users       memUserRepo
	tenants     memTenantRepo
	tx          *memTx
	hasher      *auth.PasswordHasher
	tokens      *auth.TokenManager
	invalidator *recordingInvalidator
	flags       map[string]bool
	provisioner *Provisioner
	authSvc     *AuthService
	userSvc     *UserService
	tenantSvc   *TenantService
}

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store:       store,
		users:       memUserRepo{store},
		tenants:     memTenantRepo{store},
		tx:          &memTx{store: store},
		hasher:      auth.NewPasswordHasher(4),
		tokens:      auth.NewTokenManager("test-secret", "", time.Hour),
		invalidator: &recordingInvalidator{},
		flags:       map[string]bool{},
	}
	flags := flagMap(f.flags)
	policy := security.NewPolicy(security.NewGuard(f.tokens, f.users, nil), nil, nil)
	f.provisioner = NewProvisioner(f.tenants, flags, nil)
	f.authSvc = NewAuthService(f.users, f.tx, f.provisioner, f.hasher, f.tokens, flags, nil)
	f.userSvc = NewUserService(f.users, f.tenants, f.tx, f.provisioner, policy, f.invalidator, f.hasher, nil, nil)
	f.tenantSvc = NewTenantService(f.tenants, f.users, f.tx, policy, nil, nil)
	return f
}

type flagMap map[string]bool

func (m flagMap) Enabled(name string) bool { return m[name] }

var _ FlagSource = featureflags.Static(nil)

func (f *fixture) seedTenant(name string, plan domain.Plan) *domain.Tenant {
	t := &domain.Tenant{Name: name, SubscriptionStatus: domain.StatusActive}
	t.ApplyPlan(plan)
	_ = f.tenants.Create(context.Background(), t)
	return t
}

func (f *fixture) seedUser(username string, role domain.Role, tenantID string) *domain.User {
	hash, _ := f.hasher.Hash("Password123")
	u := &domain.User{Username: username, Email: username + "@example.com", PasswordHash: hash, Role: role}
	if tenantID != "" {
		u.TenantID = &tenantID
		_ = f.tenants.AdjustUserCount(context.Background(), tenantID, 1)
	}
	_ = f.users.Create(context.Background(), u)
	return u
}

func (f *fixture) tenant(id string) domain.Tenant {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.tenants[domain.NormalizeID(id)]
}

func strPtr(s string) *string { return &s }

func rolePtr(r domain.Role) *domain.Role { return &r }
