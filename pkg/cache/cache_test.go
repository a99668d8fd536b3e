package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWithClock(now *time.Time) *Cache[string] {
	c := New[string]()
	c.now = func() time.Time { return *now }
	return c
}

func TestSetAndGet(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", time.Second)
	val, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", val)
}

func TestExpiration(t *testing.T) {
	now := time.Unix(1000, 0)
	c := newWithClock(&now)
	c.Set("key1", "value1", 100*time.Millisecond)

	now = now.Add(150 * time.Millisecond)
	_, ok := c.Get("key1")
	assert.False(t, ok, "expired key must not be returned")
	assert.Equal(t, 0, c.Len(), "expired key is dropped on read")
}

func TestDelete(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", time.Second)
	c.Delete("key1")
	_, ok := c.Get("key1")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New[string]()
	c.Set("principal:1", "p1", time.Second)
	c.Set("principal:2", "p2", time.Second)
	c.Set("tenant:1", "t1", time.Second)
	c.Invalidate("principal:")

	_, ok1 := c.Get("principal:1")
	_, ok2 := c.Get("principal:2")
	_, ok3 := c.Get("tenant:1")
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.True(t, ok3)
}

func TestPurge(t *testing.T) {
	now := time.Unix(1000, 0)
	c := newWithClock(&now)
	c.Set("short", "a", time.Second)
	c.Set("long", "b", time.Minute)

	now = now.Add(2 * time.Second)
	c.Purge()
	assert.Equal(t, 1, c.Len())
}
