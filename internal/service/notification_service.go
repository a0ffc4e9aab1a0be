package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/portal-session/internal/events"
)

// NotificationService writes an audit trail for session lifecycle events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSessionEstablished, n.handleSessionEstablished)
	n.dispatcher.Subscribe(events.EventLoginFailed, n.handleLoginFailed)
	n.dispatcher.Subscribe(events.EventSessionCleared, n.handleSessionCleared)
}

func (n *NotificationService) handleSessionEstablished(_ context.Context, event events.Event) error {
	fields := n.baseFields(event)
	if payload, ok := event.Payload.(events.SessionEstablishedPayload); ok {
		fields = append(fields, zap.String("role", string(payload.Role)), zap.Duration("duration", payload.Duration))
	}
	n.logger.Info("SessionEstablished", fields...)
	return nil
}

func (n *NotificationService) handleLoginFailed(_ context.Context, event events.Event) error {
	fields := n.baseFields(event)
	if payload, ok := event.Payload.(events.LoginFailedPayload); ok {
		fields = append(fields,
			zap.String("code", payload.Code),
			zap.String("stage", string(payload.Stage)),
			zap.String("claimed_role", string(payload.ClaimedRole)))
	}
	n.logger.Warn("LoginFailed", fields...)
	return nil
}

func (n *NotificationService) handleSessionCleared(_ context.Context, event events.Event) error {
	fields := n.baseFields(event)
	if payload, ok := event.Payload.(events.SessionClearedPayload); ok {
		fields = append(fields, zap.String("reason", payload.Reason))
	}
	n.logger.Info("SessionCleared", fields...)
	return nil
}

func (n *NotificationService) baseFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("session_id", event.SessionID),
		zap.String("subject", event.Subject),
		zap.Uint64("attempt", event.Attempt),
		zap.Time("at", event.Timestamp),
	}
}
