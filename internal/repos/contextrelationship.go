package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

type ContextRelationshipRepo interface {
	Create(ctx context.Context, tx *gorm.DB, relationships []*types.ContextRelationship) ([]*types.ContextRelationship, error)
	GetByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) ([]*types.ContextRelationship, error)
	CountByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) (int64, error)
}

type contextRelationshipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContextRelationshipRepo(db *gorm.DB, baseLog *logger.Logger) ContextRelationshipRepo {
	repoLog := baseLog.With("repo", "ContextRelationshipRepo")
	return &contextRelationshipRepo{db: db, log: repoLog}
}

func (r *contextRelationshipRepo) Create(ctx context.Context, tx *gorm.DB, relationships []*types.ContextRelationship) ([]*types.ContextRelationship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(relationships) == 0 {
		return []*types.ContextRelationship{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&relationships).Error; err != nil {
		return nil, err
	}
	return relationships, nil
}

func (r *contextRelationshipRepo) GetByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) ([]*types.ContextRelationship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ContextRelationship
	if err := transaction.WithContext(ctx).
		Where("bounded_context_id = ?", contextID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *contextRelationshipRepo) CountByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.ContextRelationship{}).
		Where("bounded_context_id = ?", contextID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
