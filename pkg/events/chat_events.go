package events

// Chat domain event types.
const (
	ChatSessionCreated          = "CHAT_SESSION_CREATED"
	ChatMessageSent             = "CHAT_MESSAGE_SENT"
	ChatSessionRead             = "CHAT_SESSION_READ"
	ChatSessionArchived         = "CHAT_SESSION_ARCHIVED"
	ChatSessionDeleted          = "CHAT_SESSION_DELETED"
	OperatorAvailabilityChanged = "OPERATOR_AVAILABILITY_CHANGED"
)
