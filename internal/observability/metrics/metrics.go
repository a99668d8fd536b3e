package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assettrack_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	authzDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_authz_denials_total",
		Help: "Authorization denials by operation",
	}, []string{"operation"})

	principalResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_principal_resolutions_total",
		Help: "Principal resolutions by source (cache, store) and result",
	}, []string{"source", "result"})

	tenantsProvisioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assettrack_tenants_provisioned_total",
		Help: "Tenants created, by origin (admin, provisioner, registration)",
	}, []string{"origin"})

	counterRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assettrack_tenant_counter_repairs_total",
		Help: "Tenant user counters corrected by the reconciler",
	})

	reconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assettrack_reconcile_duration_seconds",
		Help:    "Duration of tenant counter reconciliation runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveLogin counts a login attempt.
func ObserveLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveDenial counts an authorization denial for operation.
func ObserveDenial(operation string) {
	authzDenials.WithLabelValues(operation).Inc()
}

// ObservePrincipal counts a principal resolution.
func ObservePrincipal(source, result string) {
	principalResolutions.WithLabelValues(source, result).Inc()
}

// ObserveTenantProvisioned counts a newly created tenant.
func ObserveTenantProvisioned(origin string) {
	tenantsProvisioned.WithLabelValues(origin).Inc()
}

// ObserveCounterRepair counts a corrected tenant counter.
func ObserveCounterRepair() {
	counterRepairs.Inc()
}

// ObserveReconcile records the duration of a reconciliation run.
func ObserveReconcile(result string, duration time.Duration) {
	reconcileDuration.WithLabelValues(result).Observe(duration.Seconds())
}
