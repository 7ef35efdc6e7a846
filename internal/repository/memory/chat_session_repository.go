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

type ChatSessionRepository struct {
	store   *Store
	journal *Journal
}

func NewChatSessionRepository(store *Store, journal *Journal) contract.ChatSessionRepository {
	return &ChatSessionRepository{store: store, journal: journal}
}

func (r *ChatSessionRepository) get(id uuid.UUID) (*entity.ChatSession, bool) {
	if x, found := r.store.sessions.Get(id.String()); found {
		return x.(*entity.ChatSession), true
	}
	return nil, false
}

// put stores a copy so callers can never mutate stored state in place.
func (r *ChatSessionRepository) put(s *entity.ChatSession) {
	c := *s
	r.store.sessions.Set(s.Id.String(), &c, cache.NoExpiration)
}

func (r *ChatSessionRepository) restore(prev *entity.ChatSession) func() {
	return func() { r.put(prev) }
}

func (r *ChatSessionRepository) Create(ctx context.Context, session *entity.ChatSession) error {
	return r.store.write(r.journal, func() error {
		if _, exists := r.get(session.Id); exists {
			return contract.ErrDuplicateRecord
		}
		if !session.IsArchived {
			// Add fails when the key is present: the uniqueness guard for active sessions.
			if err := r.store.visitors.Add(session.VisitorId, session.Id, cache.NoExpiration); err != nil {
				return contract.ErrActiveSessionExists
			}
			visitorId := session.VisitorId
			r.journal.record(func() { r.store.visitors.Delete(visitorId) })
		}
		r.put(session)
		id := session.Id.String()
		r.journal.record(func() { r.store.sessions.Delete(id) })
		return nil
	})
}

func (r *ChatSessionRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error) {
	s, found := r.get(id)
	if !found {
		return nil, nil
	}
	c := *s
	return &c, nil
}

// FindByIdForUpdate relies on the transaction already holding the store lock.
func (r *ChatSessionRepository) FindByIdForUpdate(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error) {
	return r.FindById(ctx, id)
}

func (r *ChatSessionRepository) FindActiveByVisitor(ctx context.Context, visitorId string) (*entity.ChatSession, error) {
	x, found := r.store.visitors.Get(visitorId)
	if !found {
		return nil, nil
	}
	s, err := r.FindById(ctx, x.(uuid.UUID))
	if err != nil || s == nil || s.IsArchived {
		return nil, err
	}
	return s, nil
}

func (r *ChatSessionRepository) collect(keep func(*entity.ChatSession) bool) []*entity.ChatSession {
	items := r.store.sessions.Items()
	result := make([]*entity.ChatSession, 0, len(items))
	for _, item := range items {
		s := item.Object.(*entity.ChatSession)
		if keep(s) {
			c := *s
			result = append(result, &c)
		}
	}
	return result
}

func (r *ChatSessionRepository) FindAllActive(ctx context.Context) ([]*entity.ChatSession, error) {
	sessions := r.collect(func(s *entity.ChatSession) bool { return !s.IsArchived })
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Id.String() > b.Id.String()
	})
	return sessions, nil
}

func (r *ChatSessionRepository) FindAllArchived(ctx context.Context, limit, offset int) ([]*entity.ChatSession, int64, error) {
	sessions := r.collect(func(s *entity.ChatSession) bool { return s.IsArchived })
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		// Sessions without an archive time sort last, as in the gorm backend.
		if (a.ArchivedAt == nil) != (b.ArchivedAt == nil) {
			return b.ArchivedAt == nil
		}
		if a.ArchivedAt != nil && !a.ArchivedAt.Equal(*b.ArchivedAt) {
			return a.ArchivedAt.After(*b.ArchivedAt)
		}
		return a.Id.String() > b.Id.String()
	})

	total := int64(len(sessions))
	if offset >= len(sessions) {
		return []*entity.ChatSession{}, total, nil
	}
	end := len(sessions)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return sessions[offset:end], total, nil
}

// update applies fn to a copy of the stored session and journals the previous value.
func (r *ChatSessionRepository) update(id uuid.UUID, fn func(s *entity.ChatSession)) error {
	return r.store.write(r.journal, func() error {
		current, found := r.get(id)
		if !found {
			return contract.ErrRecordNotFound
		}
		prev := *current
		next := *current
		fn(&next)
		r.put(&next)
		r.journal.record(r.restore(&prev))
		return nil
	})
}

func (r *ChatSessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time, fromVisitor bool) error {
	return r.update(id, func(s *entity.ChatSession) {
		if at.After(s.LastMessageAt) {
			s.LastMessageAt = at
		}
		if fromVisitor {
			s.HasUnreadMessages = true
		}
	})
}

func (r *ChatSessionRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(s *entity.ChatSession) {
		s.HasUnreadMessages = false
	})
}

func (r *ChatSessionRepository) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.store.write(r.journal, func() error {
		current, found := r.get(id)
		if !found {
			return contract.ErrRecordNotFound
		}
		if current.IsArchived {
			return nil
		}
		prev := *current
		next := *current
		next.IsArchived = true
		next.ArchivedAt = &at
		r.put(&next)
		r.journal.record(r.restore(&prev))
		r.releaseVisitor(&prev)
		return nil
	})
}

func (r *ChatSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.store.write(r.journal, func() error {
		current, found := r.get(id)
		if !found {
			return contract.ErrRecordNotFound
		}
		prev := *current
		r.store.sessions.Delete(id.String())
		r.journal.record(r.restore(&prev))
		r.releaseVisitor(&prev)
		deleteMessagesBySession(r.store, r.journal, id)
		return nil
	})
}

// releaseVisitor frees the visitor's active slot if it still points at s.
func (r *ChatSessionRepository) releaseVisitor(s *entity.ChatSession) {
	x, found := r.store.visitors.Get(s.VisitorId)
	if !found || x.(uuid.UUID) != s.Id {
		return
	}
	r.store.visitors.Delete(s.VisitorId)
	visitorId, id := s.VisitorId, s.Id
	r.journal.record(func() { r.store.visitors.Set(visitorId, id, cache.NoExpiration) })
}

func (r *ChatSessionRepository) CountActive(ctx context.Context) (int64, error) {
	return int64(len(r.collect(func(s *entity.ChatSession) bool { return !s.IsArchived }))), nil
}

func (r *ChatSessionRepository) CountUnread(ctx context.Context) (int64, error) {
	return int64(len(r.collect(func(s *entity.ChatSession) bool {
		return !s.IsArchived && s.HasUnreadMessages
	}))), nil
}
