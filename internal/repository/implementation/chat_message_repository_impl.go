package implementation

import (
	"context"
	"errors"
	"time"

	"clinic-chat-be/internal/entity"
	"clinic-chat-be/internal/mapper"
	"clinic-chat-be/internal/model"
	"clinic-chat-be/internal/repository/contract"
	"clinic-chat-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatMessageRepository(db *gorm.DB) contract.ChatMessageRepository {
	return &ChatMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatMessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatMessageRepositoryImpl) Create(ctx context.Context, message *entity.ChatMessage) error {
	m := r.mapper.ChatMessageToModel(message)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*message = *r.mapper.ChatMessageToEntity(m)
	return nil
}

func (r *ChatMessageRepositoryImpl) findOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatMessage, error) {
	var m model.ChatMessage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatMessageToEntity(&m), nil
}

func (r *ChatMessageRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.ChatMessage, error) {
	return r.findOne(ctx, specification.ByID{ID: id})
}

func (r *ChatMessageRepositoryImpl) FindAllBySession(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatMessage, error) {
	var models []*model.ChatMessage
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.ByTimestamp{},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatMessagesToEntities(models), nil
}

func (r *ChatMessageRepositoryImpl) FindLastBySession(ctx context.Context, sessionId uuid.UUID) (*entity.ChatMessage, error) {
	return r.findOne(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.ByTimestamp{Desc: true},
	)
}

func (r *ChatMessageRepositoryImpl) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Where("id = ?", id).
		Where("is_read = ?", false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return contract.ErrRecordNotFound
	}
	return nil
}

func (r *ChatMessageRepositoryImpl) MarkAllReadBySession(ctx context.Context, sessionId uuid.UUID, at time.Time) (int64, error) {
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatMessage{}),
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.Unread{},
	)
	result := query.Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return result.RowsAffected, result.Error
}

func (r *ChatMessageRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&model.ChatMessage{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return contract.ErrRecordNotFound
	}
	return nil
}

func (r *ChatMessageRepositoryImpl) DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionId).Delete(&model.ChatMessage{}).Error
}

func (r *ChatMessageRepositoryImpl) CountBySession(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatMessage{}),
		specification.ByChatSessionID{ChatSessionID: sessionId},
	)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
