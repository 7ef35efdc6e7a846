package service

import "clinic-chat-be/internal/entity"

// Session update kinds carried by ChatDelivery.DeliverSessionUpdate.
const (
	SessionUpdateCreated  = "created"
	SessionUpdateRead     = "read"
	SessionUpdateArchived = "archived"
	SessionUpdateDeleted  = "deleted"
)

// ChatDelivery pushes committed changes to connected parties. Implementations
// must not block; undeliverable frames are dropped.
type ChatDelivery interface {
	DeliverMessage(session *entity.ChatSession, message *entity.ChatMessage)
	DeliverSessionUpdate(kind string, session *entity.ChatSession)
}

type noopDelivery struct{}

func (noopDelivery) DeliverMessage(*entity.ChatSession, *entity.ChatMessage) {}
func (noopDelivery) DeliverSessionUpdate(string, *entity.ChatSession) {}
