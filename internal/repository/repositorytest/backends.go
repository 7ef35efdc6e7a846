// Package repositorytest runs the chat repository contract against every
// store implementation.
package repositorytest

import (
	"os"
	"path/filepath"
	"testing"

	"clinic-chat-be/internal/model"
	"clinic-chat-be/internal/repository/memory"
	"clinic-chat-be/internal/repository/unitofwork"
	"clinic-chat-be/pkg/database"

	"github.com/stretchr/testify/require"
)

// PostgresDSNEnv enables the postgres backend when set. The chat tables are
// truncated before each use.
const PostgresDSNEnv = "CHAT_TEST_POSTGRES_DSN"

type Backend struct {
	Name string
	New  func(t *testing.T) unitofwork.RepositoryFactory
}

func Backends() []Backend {
	backends := []Backend{
		{Name: "memory", New: NewMemoryFactory},
		{Name: "sqlite", New: NewSQLiteFactory},
	}
	if os.Getenv(PostgresDSNEnv) != "" {
		backends = append(backends, Backend{Name: "postgres", New: NewPostgresFactory})
	}
	return backends
}

// ForEachBackend runs fn as a subtest with a fresh, empty store per backend.
func ForEachBackend(t *testing.T, fn func(t *testing.T, factory unitofwork.RepositoryFactory)) {
	for _, backend := range Backends() {
		backend := backend
		t.Run(backend.Name, func(t *testing.T) {
			fn(t, backend.New(t))
		})
	}
}

func NewMemoryFactory(t *testing.T) unitofwork.RepositoryFactory {
	return unitofwork.NewMemoryRepositoryFactory(memory.NewStore())
}

func NewSQLiteFactory(t *testing.T) unitofwork.RepositoryFactory {
	t.Helper()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "chat.db"), "silent")
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return unitofwork.NewRepositoryFactory(db)
}

func NewPostgresFactory(t *testing.T) unitofwork.RepositoryFactory {
	t.Helper()

	db, err := database.NewGormDBFromDSN(os.Getenv(PostgresDSNEnv), "silent")
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))
	require.NoError(t, db.Exec("TRUNCATE chat_messages, chat_sessions, chat_operators").Error)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return unitofwork.NewRepositoryFactory(db)
}
