package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
)

// stubTenants answers RecountUsers from live, the membership as it stands at
// recount time, which may have moved since the CountByTenant snapshot.
type stubTenants struct {
	domain.TenantRepository
	tenants  []*domain.Tenant
	live     map[string]int
	written  map[string]int
	failSet  bool
	recounts int
}

func (s *stubTenants) List(context.Context) ([]*domain.Tenant, error) { return s.tenants, nil }

func (s *stubTenants) RecountUsers(_ context.Context, id string) (int, int, error) {
	s.recounts++
	if s.failSet {
		return 0, 0, errors.New("db unavailable")
	}
	var stored int
	for _, t := range s.tenants {
		if t.ID == id {
			stored = t.UserCount
		}
	}
	live := s.live[id]
	if live != stored {
		s.written[id] = live
	}
	return stored, live, nil
}

type stubUsers struct {
	domain.UserRepository
	counts map[string]int
	err    error
}

func (s *stubUsers) CountByTenant(context.Context) (map[string]int, error) { return s.counts, s.err }

const (
	tenantA = "0b5c7a9e-1111-4aaa-8aaa-00000000000a"
	tenantB = "0b5c7a9e-1111-4aaa-8aaa-00000000000b"
	tenantC = "0b5c7a9e-1111-4aaa-8aaa-00000000000c"
)

func TestRunOnceRepairsDrift(t *testing.T) {
	tenants := &stubTenants{
		tenants: []*domain.Tenant{
			{ID: tenantA, UserCount: 3},
			{ID: tenantB, UserCount: 5},
			{ID: tenantC, UserCount: 2},
		},
		live:    map[string]int{tenantA: 3, tenantB: 4},
		written: map[string]int{},
	}
	users := &stubUsers{counts: map[string]int{tenantA: 3, tenantB: 4}}

	w := NewReconciler(tenants, users, nil, time.Minute)
	repaired, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)
	assert.Equal(t, map[string]int{tenantB: 4, tenantC: 0}, tenants.written)
	assert.Equal(t, 2, tenants.recounts, "in-sync tenants are not recounted")
}

func TestRunOnceWritesLiveCountNotSnapshot(t *testing.T) {
	// The snapshot says 3 members, but a create committed before the
	// recount took the row lock: the written value must be 4.
	tenants := &stubTenants{
		tenants: []*domain.Tenant{{ID: tenantA, UserCount: 2}},
		live:    map[string]int{tenantA: 4},
		written: map[string]int{},
	}
	users := &stubUsers{counts: map[string]int{tenantA: 3}}

	w := NewReconciler(tenants, users, nil, time.Minute)
	repaired, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Equal(t, map[string]int{tenantA: 4}, tenants.written)
}

func TestRunOnceDriftResolvedBeforeLock(t *testing.T) {
	tenants := &stubTenants{
		tenants: []*domain.Tenant{{ID: tenantA, UserCount: 2}},
		live:    map[string]int{tenantA: 2},
		written: map[string]int{},
	}
	users := &stubUsers{counts: map[string]int{tenantA: 3}}

	w := NewReconciler(tenants, users, nil, time.Minute)
	repaired, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, repaired)
	assert.Empty(t, tenants.written)
}

func TestRunOnceCountFailure(t *testing.T) {
	w := NewReconciler(&stubTenants{written: map[string]int{}}, &stubUsers{err: errors.New("boom")}, nil, time.Minute)
	_, err := w.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunOnceSkipsFailedRepairs(t *testing.T) {
	tenants := &stubTenants{
		tenants: []*domain.Tenant{{ID: tenantA, UserCount: 1}},
		written: map[string]int{},
		failSet: true,
	}
	w := NewReconciler(tenants, &stubUsers{counts: map[string]int{}}, nil, time.Minute)
	w.retry.InitialBackoff = time.Millisecond

	repaired, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestStartDisabledReturns(t *testing.T) {
	w := NewReconciler(&stubTenants{}, &stubUsers{}, nil, 0)
	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled reconciler did not return")
	}
}
