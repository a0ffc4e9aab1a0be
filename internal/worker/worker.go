package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/portal-session/internal/inference"
	"github.com/spec-kit/portal-session/internal/observability"
	"github.com/spec-kit/portal-session/internal/service"
	"github.com/spec-kit/portal-session/internal/session"
)

// RegisterAuditHandlers subscribes the audit trail to session events.
func RegisterAuditHandlers(notifications *service.NotificationService) {
	if notifications == nil {
		return
	}
	notifications.RegisterHandlers()
}

// RunReachabilityMonitor probes connectivity until ctx ends.
func RunReachabilityMonitor(ctx context.Context, monitor *inference.ProbeMonitor, logger *zap.Logger) error {
	if monitor == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("reachability monitor started")
	defer logger.Info("reachability monitor stopped")
	return monitor.Run(ctx)
}

// RunSessionObserver feeds session store changes into metrics until ctx ends or the store closes.
func RunSessionObserver(ctx context.Context, store *session.Store, metrics *observability.Metrics, logger *zap.Logger) error {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("session observer started")
	defer logger.Info("session observer stopped")

	for change := range store.Observe(ctx) {
		role := ""
		if change.Kind == session.ChangeSet && change.Identity != nil {
			role = string(change.Identity.Role)
		}
		metrics.RecordSessionChange(string(change.Kind), role)
		logger.Debug("session changed",
			zap.String("kind", string(change.Kind)),
			zap.String("role", role),
			zap.Uint64("attempt", change.Attempt))
	}
	return nil
}
