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
	"gorm.io/gorm/clause"
)

type ChatOperatorRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatOperatorRepository(db *gorm.DB) contract.ChatOperatorRepository {
	return &ChatOperatorRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatOperatorRepositoryImpl) Create(ctx context.Context, operator *entity.ChatOperator) error {
	m := r.mapper.ChatOperatorToModel(operator)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return contract.ErrDuplicateRecord
		}
		return err
	}
	*operator = *r.mapper.ChatOperatorToEntity(m)
	return nil
}

func (r *ChatOperatorRepositoryImpl) FindByUserId(ctx context.Context, userId uuid.UUID) (*entity.ChatOperator, error) {
	var m model.ChatOperator
	query := specification.ByUserID{UserID: userId}.Apply(r.db.WithContext(ctx))
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatOperatorToEntity(&m), nil
}

func (r *ChatOperatorRepositoryImpl) FindAllAvailable(ctx context.Context) ([]*entity.ChatOperator, error) {
	var models []*model.ChatOperator
	query := specification.AvailableOperators{}.Apply(r.db.WithContext(ctx))
	query = specification.OrderBy{Field: "last_active_at", Desc: true}.Apply(query)
	query = specification.OrderBy{Field: "user_id"}.Apply(query)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	entities := make([]*entity.ChatOperator, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ChatOperatorToEntity(m)
	}
	return entities, nil
}

func (r *ChatOperatorRepositoryImpl) UpdateAvailability(ctx context.Context, userId uuid.UUID, isAvailable bool, at time.Time) (*entity.ChatOperator, error) {
	m := &model.ChatOperator{
		UserId:       userId,
		IsAvailable:  isAvailable,
		LastActiveAt: at,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_available", "last_active_at", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUserId(ctx, userId)
}

func (r *ChatOperatorRepositoryImpl) Delete(ctx context.Context, userId uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&model.ChatOperator{}, "user_id = ?", userId)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return contract.ErrRecordNotFound
	}
	return nil
}

func (r *ChatOperatorRepositoryImpl) CountAvailable(ctx context.Context) (int64, error) {
	var count int64
	query := specification.AvailableOperators{}.Apply(r.db.WithContext(ctx).Model(&model.ChatOperator{}))
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
