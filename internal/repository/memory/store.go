package memory

import (
	"sync"
	"sync/atomic"

	"github.com/patrickmn/go-cache"
)

// Store is the transient backing for the in-memory repositories. Entries never
// expire; go-cache is used for its concurrent map and atomic Add.
//
// Writers serialize on mu. A unit of work holds mu from Begin until Commit or
// Rollback and records an undo entry for every mutation it performs.
type Store struct {
	mu sync.Mutex

	sessions  *cache.Cache // session id -> *entity.ChatSession
	visitors  *cache.Cache // visitor id -> uuid.UUID of the active session
	messages  *cache.Cache // message id -> *storedMessage
	operators *cache.Cache // user id -> *entity.ChatOperator

	seq atomic.Uint64
}

func NewStore() *Store {
	return &Store{
		sessions:  cache.New(cache.NoExpiration, 0),
		visitors:  cache.New(cache.NoExpiration, 0),
		messages:  cache.New(cache.NoExpiration, 0),
		operators: cache.New(cache.NoExpiration, 0),
	}
}

// Begin locks the store for writing and returns the journal of the new transaction.
func (s *Store) Begin() *Journal {
	s.mu.Lock()
	return &Journal{}
}

// Commit keeps the journal's writes and releases the store.
func (s *Store) Commit(j *Journal) {
	j.undo = nil
	s.mu.Unlock()
}

// Rollback reverts the journal's writes, newest first, and releases the store.
func (s *Store) Rollback(j *Journal) {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
	s.mu.Unlock()
}

// Journal records how to revert the writes of one transaction.
type Journal struct {
	undo []func()
}

func (j *Journal) record(fn func()) {
	if j != nil {
		j.undo = append(j.undo, fn)
	}
}

// write runs fn under the store lock unless the caller is already inside a
// transaction, which holds it.
func (s *Store) write(j *Journal, fn func() error) error {
	if j != nil {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
