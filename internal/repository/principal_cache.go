package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/assettrack/internal/reliability/circuitbreaker"
)

const principalKeyPrefix = "principal:"

// RedisPrincipalCache implements domain.PrincipalCache on Redis. Every failure
// is treated as a miss; repeated failures open the breaker and the cache is
// bypassed until Redis recovers.
type RedisPrincipalCache struct {
	redis   *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRedisPrincipalCache creates a new Redis-backed principal cache
func NewRedisPrincipalCache(client *redis.Client, breaker *circuitbreaker.CircuitBreaker, logger *slog.Logger) *RedisPrincipalCache {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	}
	return &RedisPrincipalCache{redis: client, breaker: breaker, logger: logger}
}

// Get returns the cached principal for userID.
func (c *RedisPrincipalCache) Get(ctx context.Context, userID string) (*domain.Principal, bool) {
	if !c.breaker.AllowRequest() {
		return nil, false
	}
	data, err := c.redis.Get(ctx, principalKey(userID))
	if err != nil {
		if errors.Is(err, redis.ErrMiss) {
			c.breaker.RecordSuccess()
			return nil, false
		}
		c.fail("get", err)
		return nil, false
	}
	c.breaker.RecordSuccess()

	var p domain.Principal
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		c.logger.Warn("discarding malformed cached principal",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return &p, true
}

// Set stores p for ttl.
func (c *RedisPrincipalCache) Set(ctx context.Context, p *domain.Principal, ttl time.Duration) {
	if ttl <= 0 || !c.breaker.AllowRequest() {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, principalKey(p.UserID), string(data), ttl); err != nil {
		c.fail("set", err)
		return
	}
	c.breaker.RecordSuccess()
}

// Invalidate drops the cached principal for userID.
func (c *RedisPrincipalCache) Invalidate(ctx context.Context, userID string) {
	if err := c.redis.Delete(ctx, principalKey(userID)); err != nil {
		c.fail("invalidate", err)
		return
	}
	c.breaker.RecordSuccess()
}

func (c *RedisPrincipalCache) fail(op string, err error) {
	c.breaker.RecordFailure()
	c.logger.Warn("principal cache unavailable",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

func principalKey(userID string) string {
	return principalKeyPrefix + domain.NormalizeID(userID)
}
