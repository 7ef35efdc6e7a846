package unitofwork

import (
	"context"

	"clinic-chat-be/internal/repository/contract"
	"clinic-chat-be/internal/repository/memory"
)

// MemoryUnitOfWork runs against the transient store. Begin holds the store's
// write lock until Commit or Rollback, so keep transactions short.
type MemoryUnitOfWork struct {
	store   *memory.Store
	journal *memory.Journal
}

func NewMemoryUnitOfWork(store *memory.Store) UnitOfWork {
	return &MemoryUnitOfWork{store: store}
}

func (u *MemoryUnitOfWork) Begin(ctx context.Context) error {
	if u.journal != nil {
		return ErrTransactionStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u.journal = u.store.Begin()
	return nil
}

func (u *MemoryUnitOfWork) Commit() error {
	if u.journal == nil {
		return ErrNoTransaction
	}
	u.store.Commit(u.journal)
	u.journal = nil
	return nil
}

func (u *MemoryUnitOfWork) Rollback() error {
	if u.journal == nil {
		return nil
	}
	u.store.Rollback(u.journal)
	u.journal = nil
	return nil
}

func (u *MemoryUnitOfWork) ChatSessionRepository() contract.ChatSessionRepository {
	return memory.NewChatSessionRepository(u.store, u.journal)
}

func (u *MemoryUnitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return memory.NewChatMessageRepository(u.store, u.journal)
}

func (u *MemoryUnitOfWork) ChatOperatorRepository() contract.ChatOperatorRepository {
	return memory.NewChatOperatorRepository(u.store, u.journal)
}
