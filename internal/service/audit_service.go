package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/events"
)

// AuditService writes an audit trail of account and task events.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.record)
	a.dispatcher.Subscribe(events.EventUserLoggedIn, a.handleLogin)
	a.dispatcher.Subscribe(events.EventUserLoggedOut, a.record)
	a.dispatcher.Subscribe(events.EventTaskCreated, a.record)
	a.dispatcher.Subscribe(events.EventTaskUpdated, a.record)
	a.dispatcher.Subscribe(events.EventTaskDeleted, a.record)
}

func (a *AuditService) record(_ context.Context, event events.Event) error {
	a.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("actor_id", event.ActorID),
		zap.Time("at", event.Timestamp),
		zap.Any("payload", event.Payload))
	return nil
}

func (a *AuditService) handleLogin(ctx context.Context, event events.Event) error {
	if p, ok := event.Payload.(events.LoginPayload); ok && !p.Cached {
		a.logger.Warn("login issued without token cache",
			zap.String("event_id", event.ID),
			zap.String("actor_id", event.ActorID))
	}
	return a.record(ctx, event)
}
