package contract

import (
	"context"
	"time"

	"clinic-chat-be/internal/entity"

	"github.com/google/uuid"
)

type ChatSessionRepository interface {
	Create(ctx context.Context, session *entity.ChatSession) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error)
	FindByIdForUpdate(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error) // row lock, only meaningful inside a transaction
	FindActiveByVisitor(ctx context.Context, visitorId string) (*entity.ChatSession, error)
	FindAllActive(ctx context.Context) ([]*entity.ChatSession, error) // most recent lastMessageAt first
	FindAllArchived(ctx context.Context, limit, offset int) ([]*entity.ChatSession, int64, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time, fromVisitor bool) error
	MarkRead(ctx context.Context, id uuid.UUID) error
	Archive(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountActive(ctx context.Context) (int64, error)
	CountUnread(ctx context.Context) (int64, error)
}
