package events

import (
	"context"
	"time"

	"clinic-chat-be/internal/entity"
	"clinic-chat-be/internal/pkg/logger"
	pkgEvents "clinic-chat-be/pkg/events"

	"github.com/google/uuid"
)

// Publisher emits chat domain events. Publishing is best effort: failures are
// logged and never fail the operation that triggered them.
type Publisher interface {
	PublishSessionCreated(ctx context.Context, session *entity.ChatSession)
	PublishMessageSent(ctx context.Context, message *entity.ChatMessage)
	PublishSessionRead(ctx context.Context, session *entity.ChatSession)
	PublishSessionArchived(ctx context.Context, session *entity.ChatSession)
	PublishSessionDeleted(ctx context.Context, sessionId uuid.UUID)
	PublishOperatorAvailabilityChanged(ctx context.Context, operator *entity.ChatOperator)
}

type ChatEventPublisher struct {
	publisher pkgEvents.Publisher
	logger    logger.ILogger
}

func NewChatEventPublisher(publisher pkgEvents.Publisher, logger logger.ILogger) *ChatEventPublisher {
	return &ChatEventPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *ChatEventPublisher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if p.publisher == nil {
		return
	}

	evt := pkgEvents.BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.logger.Error("CHAT_EVENTS", "Failed to publish "+eventType+" event", map[string]interface{}{"error": err.Error()})
	}
}

func (p *ChatEventPublisher) PublishSessionCreated(ctx context.Context, session *entity.ChatSession) {
	p.publish(ctx, pkgEvents.ChatSessionCreated, map[string]interface{}{
		"session_id": session.Id.String(),
		"visitor_id": session.VisitorId,
		"created_at": session.CreatedAt,
	})
}

func (p *ChatEventPublisher) PublishMessageSent(ctx context.Context, message *entity.ChatMessage) {
	p.publish(ctx, pkgEvents.ChatMessageSent, map[string]interface{}{
		"message_id":  message.Id.String(),
		"session_id":  message.SessionId.String(),
		"sender_type": string(message.SenderType),
		"timestamp":   message.Timestamp,
	})
}

func (p *ChatEventPublisher) PublishSessionRead(ctx context.Context, session *entity.ChatSession) {
	p.publish(ctx, pkgEvents.ChatSessionRead, map[string]interface{}{
		"session_id": session.Id.String(),
	})
}

func (p *ChatEventPublisher) PublishSessionArchived(ctx context.Context, session *entity.ChatSession) {
	p.publish(ctx, pkgEvents.ChatSessionArchived, map[string]interface{}{
		"session_id": session.Id.String(),
		"visitor_id": session.VisitorId,
	})
}

func (p *ChatEventPublisher) PublishSessionDeleted(ctx context.Context, sessionId uuid.UUID) {
	p.publish(ctx, pkgEvents.ChatSessionDeleted, map[string]interface{}{
		"session_id": sessionId.String(),
	})
}

func (p *ChatEventPublisher) PublishOperatorAvailabilityChanged(ctx context.Context, operator *entity.ChatOperator) {
	p.publish(ctx, pkgEvents.OperatorAvailabilityChanged, map[string]interface{}{
		"user_id":      operator.UserId.String(),
		"is_available": operator.IsAvailable,
	})
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishSessionCreated(context.Context, *entity.ChatSession) {}
func (NoopPublisher) PublishMessageSent(context.Context, *entity.ChatMessage) {}
func (NoopPublisher) PublishSessionRead(context.Context, *entity.ChatSession) {}
func (NoopPublisher) PublishSessionArchived(context.Context, *entity.ChatSession) {}
func (NoopPublisher) PublishSessionDeleted(context.Context, uuid.UUID) {}
func (NoopPublisher) PublishOperatorAvailabilityChanged(context.Context, *entity.ChatOperator) {}
