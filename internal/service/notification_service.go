package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/blog-service/internal/events"
	"github.com/spec-kit/blog-service/internal/observability"
)

// NotificationService reacts to account lifecycle events: every event is
// logged and counted, and forwarded to the external broker when one is
// configured.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	forwarder  *events.Forwarder
}

// NewNotificationService creates the service. metrics and forwarder may be nil.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, forwarder *events.Forwarder) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		forwarder:  forwarder,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.handleAccountEvent)
	if n.forwarder != nil {
		events.SubscribeAll(n.dispatcher, n.forwarder.Handle)
	}
}

func (n *NotificationService) handleAccountEvent(_ context.Context, event events.Event) error {
	n.metrics.RecordAuthEvent(string(event.Type))
	n.logger.Info("account event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("account_id", event.AccountID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload),
	)
	return nil
}

// publishAccountEvent emits an event; dispatch failures are logged only.
func publishAccountEvent(ctx context.Context, d events.Dispatcher, logger *zap.Logger, typ events.EventType, accountID, actorID string, payload interface{}) {
	if d == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		AccountID: accountID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := d.Publish(ctx, event); err != nil {
		logger.Warn("account event delivery failed",
			zap.String("type", string(typ)),
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}
