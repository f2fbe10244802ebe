package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

type BoundedContextRepo interface {
	Create(ctx context.Context, tx *gorm.DB, contexts []*types.BoundedContext) ([]*types.BoundedContext, error)
	GetByID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) (*types.BoundedContext, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, contextIDs []uuid.UUID) ([]*types.BoundedContext, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.BoundedContext, error)
	NameExists(ctx context.Context, tx *gorm.DB, name string) (bool, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, contextID uuid.UUID, updates map[string]interface{}) error
}

type boundedContextRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBoundedContextRepo(db *gorm.DB, baseLog *logger.Logger) BoundedContextRepo {
	repoLog := baseLog.With("repo", "BoundedContextRepo")
	return &boundedContextRepo{db: db, log: repoLog}
}

func (r *boundedContextRepo) Create(ctx context.Context, tx *gorm.DB, contexts []*types.BoundedContext) ([]*types.BoundedContext, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(contexts) == 0 {
		return []*types.BoundedContext{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&contexts).Error; err != nil {
		return nil, err
	}
	return contexts, nil
}

func (r *boundedContextRepo) GetByID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) (*types.BoundedContext, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.BoundedContext
	if err := transaction.WithContext(ctx).
		Where("id = ?", contextID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *boundedContextRepo) GetByIDs(ctx context.Context, tx *gorm.DB, contextIDs []uuid.UUID) ([]*types.BoundedContext, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.BoundedContext
	if len(contextIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", contextIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *boundedContextRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.BoundedContext, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.BoundedContext
	if err := transaction.WithContext(ctx).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *boundedContextRepo) NameExists(ctx context.Context, tx *gorm.DB, name string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.BoundedContext{}).
		Where("name = ?", name).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *boundedContextRepo) UpdateFields(ctx context.Context, tx *gorm.DB, contextID uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.BoundedContext{}).
		Where("id = ?", contextID).
		Updates(updates).Error
}
