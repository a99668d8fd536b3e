package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
)

// Logger writes audit records for security-relevant actions.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("stream", "audit"))}
}

func (al *Logger) LogAction(ctx context.Context, actor *domain.Principal, action, resource, resourceID, status, details string) {
	userID, tenantID, role := "", "", ""
	if actor != nil {
		userID, tenantID, role = actor.UserID, actor.TenantID, string(actor.Role)
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("actor_id", userID),
		slog.String("actor_role", role),
		slog.String("actor_tenant_id", tenantID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

// LogSuccess records a completed mutation.
func (al *Logger) LogSuccess(ctx context.Context, actor *domain.Principal, action, resource, resourceID string) {
	al.LogAction(ctx, actor, action, resource, resourceID, "success", "")
}

// LogDenied records a refused operation.
func (al *Logger) LogDenied(ctx context.Context, actor *domain.Principal, operation, reason string) {
	al.LogAction(ctx, actor, operation, "api", "", "denied", reason)
}
