package unitofwork

import "context"

// RepositoryFactory hands out units of work over one backing store, either
// gorm or the in-memory store.
type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) UnitOfWork
}
