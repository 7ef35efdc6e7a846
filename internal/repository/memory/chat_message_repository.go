package memory

import (
	"context"
	"sort"
	"time"

	"clinic-chat-be/internal/entity"
	"clinic-chat-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// storedMessage carries an insertion sequence that breaks timestamp ties.
type storedMessage struct {
	message entity.ChatMessage
	seq     uint64
}

type ChatMessageRepository struct {
	store   *Store
	journal *Journal
}

func NewChatMessageRepository(store *Store, journal *Journal) contract.ChatMessageRepository {
	return &ChatMessageRepository{store: store, journal: journal}
}

func (r *ChatMessageRepository) get(id uuid.UUID) (*storedMessage, bool) {
	if x, found := r.store.messages.Get(id.String()); found {
		return x.(*storedMessage), true
	}
	return nil, false
}

func (r *ChatMessageRepository) put(m *storedMessage) {
	c := *m
	r.store.messages.Set(m.message.Id.String(), &c, cache.NoExpiration)
}

func (r *ChatMessageRepository) restore(prev *storedMessage) func() {
	return func() { r.put(prev) }
}

func (r *ChatMessageRepository) Create(ctx context.Context, message *entity.ChatMessage) error {
	return r.store.write(r.journal, func() error {
		if _, exists := r.get(message.Id); exists {
			return contract.ErrDuplicateRecord
		}
		if _, found := r.store.sessions.Get(message.SessionId.String()); !found {
			return contract.ErrRecordNotFound
		}
		r.put(&storedMessage{message: *message, seq: r.store.seq.Add(1)})
		id := message.Id.String()
		r.journal.record(func() { r.store.messages.Delete(id) })
		return nil
	})
}

func (r *ChatMessageRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.ChatMessage, error) {
	m, found := r.get(id)
	if !found {
		return nil, nil
	}
	c := m.message
	return &c, nil
}

// bySession returns the session's messages ordered by timestamp, then insertion.
func (r *ChatMessageRepository) bySession(sessionId uuid.UUID) []*storedMessage {
	return messagesBySession(r.store, sessionId)
}

func messagesBySession(store *Store, sessionId uuid.UUID) []*storedMessage {
	items := store.messages.Items()
	result := make([]*storedMessage, 0)
	for _, item := range items {
		m := item.Object.(*storedMessage)
		if m.message.SessionId == sessionId {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.message.Timestamp.Equal(b.message.Timestamp) {
			return a.message.Timestamp.Before(b.message.Timestamp)
		}
		return a.seq < b.seq
	})
	return result
}

func (r *ChatMessageRepository) FindAllBySession(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatMessage, error) {
	stored := r.bySession(sessionId)
	messages := make([]*entity.ChatMessage, 0, len(stored))
	for _, m := range stored {
		c := m.message
		messages = append(messages, &c)
	}
	return messages, nil
}

func (r *ChatMessageRepository) FindLastBySession(ctx context.Context, sessionId uuid.UUID) (*entity.ChatMessage, error) {
	stored := r.bySession(sessionId)
	if len(stored) == 0 {
		return nil, nil
	}
	c := stored[len(stored)-1].message
	return &c, nil
}

func (r *ChatMessageRepository) markRead(m *storedMessage, at time.Time) {
	prev := *m
	next := *m
	next.message.IsRead = true
	readAt := at
	next.message.ReadAt = &readAt
	r.put(&next)
	r.journal.record(r.restore(&prev))
}

func (r *ChatMessageRepository) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.store.write(r.journal, func() error {
		m, found := r.get(id)
		if !found {
			return contract.ErrRecordNotFound
		}
		if !m.message.IsRead {
			r.markRead(m, at)
		}
		return nil
	})
}

func (r *ChatMessageRepository) MarkAllReadBySession(ctx context.Context, sessionId uuid.UUID, at time.Time) (int64, error) {
	var affected int64
	err := r.store.write(r.journal, func() error {
		for _, m := range r.bySession(sessionId) {
			if !m.message.IsRead {
				r.markRead(m, at)
				affected++
			}
		}
		return nil
	})
	return affected, err
}

func (r *ChatMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.store.write(r.journal, func() error {
		m, found := r.get(id)
		if !found {
			return contract.ErrRecordNotFound
		}
		prev := *m
		r.store.messages.Delete(id.String())
		r.journal.record(r.restore(&prev))
		return nil
	})
}

func (r *ChatMessageRepository) DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error {
	return r.store.write(r.journal, func() error {
		deleteMessagesBySession(r.store, r.journal, sessionId)
		return nil
	})
}

// deleteMessagesBySession expects the caller to hold the store lock.
func deleteMessagesBySession(store *Store, journal *Journal, sessionId uuid.UUID) {
	for _, m := range messagesBySession(store, sessionId) {
		prev := *m
		store.messages.Delete(prev.message.Id.String())
		journal.record(func() {
			store.messages.Set(prev.message.Id.String(), &prev, cache.NoExpiration)
		})
	}
}

func (r *ChatMessageRepository) CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	return int64(len(r.bySession(sessionId))), nil
}
