package unitofwork

import (
	"context"

	"clinic-chat-be/internal/repository/contract"
)

// UnitOfWork groups repository calls into one atomic change. Accessors called
// after Begin are bound to the transaction; before Begin they run directly
// against the store.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ChatSessionRepository() contract.ChatSessionRepository
	ChatMessageRepository() contract.ChatMessageRepository
	ChatOperatorRepository() contract.ChatOperatorRepository
}
