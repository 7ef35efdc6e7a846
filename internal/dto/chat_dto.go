package dto

import (
	"time"

	"github.com/google/uuid"
)

type ChatSessionResponse struct {
	Id                uuid.UUID  `json:"id"`
	VisitorId         string     `json:"visitor_id"`
	IsArchived        bool       `json:"is_archived"`
	HasUnreadMessages bool       `json:"has_unread_messages"`
	LastMessageAt     time.Time  `json:"last_message_at"`
	ArchivedAt        *time.Time `json:"archived_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type ChatMessageResponse struct {
	Id         uuid.UUID  `json:"id"`
	SessionId  uuid.UUID  `json:"session_id"`
	SenderType string     `json:"sender_type"`
	SenderId   *uuid.UUID `json:"sender_id,omitempty"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

type ChatOperatorResponse struct {
	UserId       uuid.UUID `json:"user_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	IsAvailable  bool      `json:"is_available"`
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type ArchivedSessionsResponse struct {
	Sessions []*ChatSessionResponse `json:"sessions"`
	Total    int64                  `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
}

type QueueStatusResponse struct {
	ActiveSessions     int64 `json:"active_sessions"`
	UnreadSessions     int64 `json:"unread_sessions"`
	AvailableOperators int64 `json:"available_operators"`
	NeedsAttention     bool  `json:"needs_attention"`
}

// Requests

type VisitorSessionRequest struct {
	VisitorId string `json:"visitor_id" validate:"required,max=128"`
}

type VisitorMessageRequest struct {
	VisitorId string `json:"visitor_id" validate:"required,max=128"`
	Content   string `json:"content" validate:"required"`
}

type OperatorMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// SendChatMessageRequest is the service-level input for appending to a session.
type SendChatMessageRequest struct {
	SessionId  uuid.UUID
	SenderType string
	SenderId   *uuid.UUID
	Content    string
}

type SetAvailabilityRequest struct {
	IsAvailable *bool `json:"is_available" validate:"required"`
}

type RegisterOperatorRequest struct {
	UserId      uuid.UUID `json:"user_id" validate:"required"`
	DisplayName string    `json:"display_name" validate:"max=100"`
}
