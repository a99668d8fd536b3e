package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/assettrack/internal/reliability/circuitbreaker"
)

func newRedisCache(t *testing.T) (*RedisPrincipalCache, *miniredis.Miniredis, *circuitbreaker.CircuitBreaker) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	breaker := circuitbreaker.NewCircuitBreaker(2, 1, time.Minute)
	return NewRedisPrincipalCache(redis.Wrap(rdb, nil), breaker, nil), mr, breaker
}

func TestRedisPrincipalCacheRoundTrip(t *testing.T) {
	cache, mr, _ := newRedisCache(t)
	ctx := context.Background()
	id := domain.NewID()
	p := &domain.Principal{UserID: id, Username: "alice", Role: domain.RoleTenantAdmin, TenantID: domain.NewID()}

	_, ok := cache.Get(ctx, id)
	assert.False(t, ok)

	cache.Set(ctx, p, time.Minute)
	got, ok := cache.Get(ctx, "{"+id+"}")
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.True(t, mr.Exists("principal:"+id))

	mr.FastForward(2 * time.Minute)
	_, ok = cache.Get(ctx, id)
	assert.False(t, ok, "entries expire with their ttl")

	cache.Set(ctx, p, time.Minute)
	cache.Invalidate(ctx, id)
	_, ok = cache.Get(ctx, id)
	assert.False(t, ok)
}

func TestRedisPrincipalCacheOpensBreaker(t *testing.T) {
	cache, mr, breaker := newRedisCache(t)
	ctx := context.Background()
	mr.Close()

	_, ok := cache.Get(ctx, domain.NewID())
	assert.False(t, ok)
	_, ok = cache.Get(ctx, domain.NewID())
	assert.False(t, ok)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.GetState())
}

func TestMemoryPrincipalCache(t *testing.T) {
	cache := NewMemoryPrincipalCache()
	ctx := context.Background()
	id := domain.NewID()
	p := &domain.Principal{UserID: id, Role: domain.RoleUser, TenantID: domain.NewID()}

	cache.Set(ctx, p, time.Minute)
	got, ok := cache.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, *p, *got)

	cache.Invalidate(ctx, id)
	_, ok = cache.Get(ctx, id)
	assert.False(t, ok)
}
