package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

type ContextMessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, messages []*types.ContextMessage) ([]*types.ContextMessage, error)
	GetByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) ([]*types.ContextMessage, error)
	CountByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) (int64, error)
	DeleteByIDInScope(ctx context.Context, tx *gorm.DB, userID, namespaceID, messageID uuid.UUID) (int64, error)
	DeleteByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) (int64, error)
	MoveNamespace(ctx context.Context, tx *gorm.DB, userID, from, to uuid.UUID) (int64, error)
}

type contextMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContextMessageRepo(db *gorm.DB, baseLog *logger.Logger) ContextMessageRepo {
	repoLog := baseLog.With("repo", "ContextMessageRepo")
	return &contextMessageRepo{db: db, log: repoLog}
}

func (r *contextMessageRepo) Create(ctx context.Context, tx *gorm.DB, messages []*types.ContextMessage) ([]*types.ContextMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(messages) == 0 {
		return []*types.ContextMessage{}, nil
	}
	const batchSize = 200
	if err := transaction.WithContext(ctx).CreateInBatches(messages, batchSize).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *contextMessageRepo) GetByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) ([]*types.ContextMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ContextMessage
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND namespace_id = ?", userID, namespaceID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *contextMessageRepo) CountByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.ContextMessage{}).
		Where("user_id = ? AND namespace_id = ?", userID, namespaceID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *contextMessageRepo) DeleteByIDInScope(ctx context.Context, tx *gorm.DB, userID, namespaceID, messageID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ? AND namespace_id = ?", messageID, userID, namespaceID).
		Delete(&types.ContextMessage{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *contextMessageRepo) DeleteByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("user_id = ? AND namespace_id = ?", userID, namespaceID).
		Delete(&types.ContextMessage{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *contextMessageRepo) MoveNamespace(ctx context.Context, tx *gorm.DB, userID, from, to uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if from == to {
		return 0, nil
	}
	res := transaction.WithContext(ctx).
		Model(&types.ContextMessage{}).
		Where("user_id = ? AND namespace_id = ?", userID, from).
		Update("namespace_id", to)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
