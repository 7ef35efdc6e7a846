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

type ChatSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatSessionRepository(db *gorm.DB) contract.ChatSessionRepository {
	return &ChatSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatSessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatSessionRepositoryImpl) Create(ctx context.Context, session *entity.ChatSession) error {
	m := r.mapper.ChatSessionToModel(session)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		// The partial unique index on visitor_id is the only unique key a caller can hit.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return contract.ErrActiveSessionExists
		}
		return err
	}
	*session = *r.mapper.ChatSessionToEntity(m)
	return nil
}

func (r *ChatSessionRepositoryImpl) findOne(ctx context.Context, db *gorm.DB, specs ...specification.Specification) (*entity.ChatSession, error) {
	var m model.ChatSession
	query := r.applySpecifications(db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatSessionToEntity(&m), nil
}

func (r *ChatSessionRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error) {
	return r.findOne(ctx, r.db, specification.ByID{ID: id})
}

func (r *ChatSessionRepositoryImpl) FindByIdForUpdate(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error) {
	return r.findOne(ctx, r.db.Clauses(clause.Locking{Strength: "UPDATE"}), specification.ByID{ID: id})
}

func (r *ChatSessionRepositoryImpl) FindActiveByVisitor(ctx context.Context, visitorId string) (*entity.ChatSession, error) {
	return r.findOne(ctx, r.db,
		specification.ByVisitorID{VisitorID: visitorId},
		specification.ActiveSessions{},
	)
}

func (r *ChatSessionRepositoryImpl) FindAllActive(ctx context.Context) ([]*entity.ChatSession, error) {
	var models []*model.ChatSession
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ActiveSessions{},
		specification.ByRecentActivity{},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatSessionsToEntities(models), nil
}

func (r *ChatSessionRepositoryImpl) FindAllArchived(ctx context.Context, limit, offset int) ([]*entity.ChatSession, int64, error) {
	total, err := r.count(ctx, specification.ArchivedSessions{})
	if err != nil {
		return nil, 0, err
	}

	var models []*model.ChatSession
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ArchivedSessions{},
		specification.ByArchivedAt{},
		specification.Pagination{Limit: limit, Offset: offset},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return r.mapper.ChatSessionsToEntities(models), total, nil
}

func (r *ChatSessionRepositoryImpl) Touch(ctx context.Context, id uuid.UUID, at time.Time, fromVisitor bool) error {
	updates := map[string]interface{}{
		"last_message_at": gorm.Expr("CASE WHEN last_message_at < ? THEN ? ELSE last_message_at END", at, at),
	}
	if fromVisitor {
		updates["has_unread_messages"] = true
	}

	result := r.db.WithContext(ctx).Model(&model.ChatSession{}).Where("id = ?", id).Updates(updates)
	return r.ensureAffected(ctx, result, id)
}

func (r *ChatSessionRepositoryImpl) MarkRead(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("id = ?", id).
		Where("has_unread_messages = ?", true).
		Update("has_unread_messages", false)
	return r.ensureAffected(ctx, result, id)
}

func (r *ChatSessionRepositoryImpl) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("id = ?", id).
		Where("is_archived = ?", false).
		Updates(map[string]interface{}{
			"is_archived": true,
			"archived_at": at,
		})
	return r.ensureAffected(ctx, result, id)
}

func (r *ChatSessionRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&model.ChatSession{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return contract.ErrRecordNotFound
	}
	return nil
}

func (r *ChatSessionRepositoryImpl) CountActive(ctx context.Context) (int64, error) {
	return r.count(ctx, specification.ActiveSessions{})
}

func (r *ChatSessionRepositoryImpl) CountUnread(ctx context.Context) (int64, error) {
	return r.count(ctx, specification.ActiveSessions{}, specification.UnreadSessions{})
}

func (r *ChatSessionRepositoryImpl) count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatSession{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ensureAffected turns a guarded update that matched nothing into either a
// no-op (row exists, already in the target state) or ErrRecordNotFound.
func (r *ChatSessionRepositoryImpl) ensureAffected(ctx context.Context, result *gorm.DB, id uuid.UUID) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	n, err := r.count(ctx, specification.ByID{ID: id})
	if err != nil {
		return err
	}
	if n == 0 {
		return contract.ErrRecordNotFound
	}
	return nil
}
