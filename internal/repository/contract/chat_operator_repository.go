package contract

import (
	"context"
	"time"

	"clinic-chat-be/internal/entity"

	"github.com/google/uuid"
)

type ChatOperatorRepository interface {
	Create(ctx context.Context, operator *entity.ChatOperator) error
	FindByUserId(ctx context.Context, userId uuid.UUID) (*entity.ChatOperator, error)
	FindAllAvailable(ctx context.Context) ([]*entity.ChatOperator, error)
	// UpdateAvailability upserts the operator row and refreshes LastActiveAt.
	UpdateAvailability(ctx context.Context, userId uuid.UUID, isAvailable bool, at time.Time) (*entity.ChatOperator, error)
	Delete(ctx context.Context, userId uuid.UUID) error
	CountAvailable(ctx context.Context) (int64, error)
}
