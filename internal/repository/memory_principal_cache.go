package repository

import (
	"context"
	"time"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/pkg/cache"
)

// MemoryPrincipalCache implements domain.PrincipalCache in process memory.
// Used when no Redis is configured; entries are per instance.
type MemoryPrincipalCache struct {
	items *cache.Cache[domain.Principal]
}

// NewMemoryPrincipalCache creates an empty in-memory principal cache
func NewMemoryPrincipalCache() *MemoryPrincipalCache {
	return &MemoryPrincipalCache{items: cache.New[domain.Principal]()}
}

func (c *MemoryPrincipalCache) Get(_ context.Context, userID string) (*domain.Principal, bool) {
	p, ok := c.items.Get(principalKey(userID))
	if !ok {
		return nil, false
	}
	return &p, true
}

func (c *MemoryPrincipalCache) Set(_ context.Context, p *domain.Principal, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.items.Set(principalKey(p.UserID), *p, ttl)
}

func (c *MemoryPrincipalCache) Invalidate(_ context.Context, userID string) {
	c.items.Delete(principalKey(userID))
}

