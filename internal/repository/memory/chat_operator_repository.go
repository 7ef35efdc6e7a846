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

type ChatOperatorRepository struct {
	store   *Store
	journal *Journal
}

func NewChatOperatorRepository(store *Store, journal *Journal) contract.ChatOperatorRepository {
	return &ChatOperatorRepository{store: store, journal: journal}
}

func (r *ChatOperatorRepository) get(userId uuid.UUID) (*entity.ChatOperator, bool) {
	if x, found := r.store.operators.Get(userId.String()); found {
		return x.(*entity.ChatOperator), true
	}
	return nil, false
}

func (r *ChatOperatorRepository) put(o *entity.ChatOperator) {
	c := *o
	r.store.operators.Set(o.UserId.String(), &c, cache.NoExpiration)
}

func (r *ChatOperatorRepository) Create(ctx context.Context, operator *entity.ChatOperator) error {
	return r.store.write(r.journal, func() error {
		c := *operator
		if err := r.store.operators.Add(operator.UserId.String(), &c, cache.NoExpiration); err != nil {
			return contract.ErrDuplicateRecord
		}
		key := operator.UserId.String()
		r.journal.record(func() { r.store.operators.Delete(key) })
		return nil
	})
}

func (r *ChatOperatorRepository) FindByUserId(ctx context.Context, userId uuid.UUID) (*entity.ChatOperator, error) {
	o, found := r.get(userId)
	if !found {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (r *ChatOperatorRepository) available() []*entity.ChatOperator {
	items := r.store.operators.Items()
	result := make([]*entity.ChatOperator, 0, len(items))
	for _, item := range items {
		o := item.Object.(*entity.ChatOperator)
		if o.IsAvailable {
			c := *o
			result = append(result, &c)
		}
	}
	return result
}

func (r *ChatOperatorRepository) FindAllAvailable(ctx context.Context) ([]*entity.ChatOperator, error) {
	operators := r.available()
	sort.Slice(operators, func(i, j int) bool {
		a, b := operators[i], operators[j]
		if !a.LastActiveAt.Equal(b.LastActiveAt) {
			return a.LastActiveAt.After(b.LastActiveAt)
		}
		return a.UserId.String() < b.UserId.String()
	})
	return operators, nil
}

func (r *ChatOperatorRepository) UpdateAvailability(ctx context.Context, userId uuid.UUID, isAvailable bool, at time.Time) (*entity.ChatOperator, error) {
	var updated entity.ChatOperator
	err := r.store.write(r.journal, func() error {
		key := userId.String()
		current, found := r.get(userId)
		if found {
			prev := *current
			r.journal.record(func() { r.put(&prev) })
			updated = *current
		} else {
			r.journal.record(func() { r.store.operators.Delete(key) })
			updated = entity.ChatOperator{UserId: userId, CreatedAt: at}
		}
		updated.IsAvailable = isAvailable
		updated.LastActiveAt = at
		r.put(&updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *ChatOperatorRepository) Delete(ctx context.Context, userId uuid.UUID) error {
	return r.store.write(r.journal, func() error {
		current, found := r.get(userId)
		if !found {
			return contract.ErrRecordNotFound
		}
		prev := *current
		r.store.operators.Delete(userId.String())
		r.journal.record(func() { r.put(&prev) })
		return nil
	})
}

func (r *ChatOperatorRepository) CountAvailable(ctx context.Context) (int64, error) {
	return int64(len(r.available())), nil
}
