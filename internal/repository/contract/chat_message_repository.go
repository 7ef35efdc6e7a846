package contract

import (
	"context"
	"time"

	"clinic-chat-be/internal/entity"

	"github.com/google/uuid"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, message *entity.ChatMessage) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.ChatMessage, error)
	FindAllBySession(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatMessage, error) // ascending timestamp
	FindLastBySession(ctx context.Context, sessionId uuid.UUID) (*entity.ChatMessage, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkAllReadBySession(ctx context.Context, sessionId uuid.UUID, at time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error
	CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error)
}
