package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/observability/metrics"
	"github.com/aryan0dhankhar/assettrack/internal/reliability/retry"
)

// Reconciler periodically recounts tenant memberships and repairs drifted
// user counters.
type Reconciler struct {
	tenants  domain.TenantRepository
	users    domain.UserRepository
	logger   *slog.Logger
	interval time.Duration
	retry    *retry.Config
}

// NewReconciler creates a reconciler running every interval.
func NewReconciler(
	tenants domain.TenantRepository,
	users domain.UserRepository,
	logger *slog.Logger,
	interval time.Duration,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		tenants:  tenants,
		users:    users,
		logger:   logger,
		interval: interval,
		retry: &retry.Config{
			MaxAttempts:       3,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        time.Second,
			BackoffMultiplier: 2.0,
		},
	}
}

// Start runs the reconcile loop until ctx is done. A non-positive interval
// returns immediately.
func (w *Reconciler) Start(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("counter reconciler disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("counter reconciler started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("counter reconciler stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("reconcile pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce finds tenants whose userCount disagrees with a membership snapshot
// and recounts each of them under the tenant row lock. The snapshot only picks
// candidates; the locked recount decides the value written. It returns the
// number of repairs.
func (w *Reconciler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()

	tenants, err := w.tenants.List(ctx)
	if err != nil {
		metrics.ObserveReconcile("error", time.Since(start))
		return 0, err
	}
	counts, err := w.users.CountByTenant(ctx)
	if err != nil {
		metrics.ObserveReconcile("error", time.Since(start))
		return 0, err
	}

	type recount struct{ stored, live int }

	repaired := 0
	for _, t := range tenants {
		if counts[domain.NormalizeID(t.ID)] == t.UserCount {
			continue
		}
		logger := w.logger.With(slog.String("tenant_id", t.ID))
		res, err := retry.Do(ctx, w.retry, w.logger, "recount users", func(ctx context.Context) (recount, error) {
			stored, live, err := w.tenants.RecountUsers(ctx, t.ID)
			return recount{stored: stored, live: live}, err
		})
		if err != nil {
			logger.Error("failed to repair user count", slog.String("error", err.Error()))
			continue
		}
		if res.stored == res.live {
			continue
		}
		logger.Warn("repaired drifted user count",
			slog.Int("stored", res.stored),
			slog.Int("live", res.live),
		)
		metrics.ObserveCounterRepair()
		repaired++
	}

	metrics.ObserveReconcile("success", time.Since(start))
	w.logger.Debug("reconcile pass complete",
		slog.Int("tenants", len(tenants)),
		slog.Int("repaired", repaired),
	)
	return repaired, nil
}
