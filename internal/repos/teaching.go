package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

type TeachingRepo interface {
	Create(ctx context.Context, tx *gorm.DB, teachings []*types.Teaching) ([]*types.Teaching, error)
	GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Teaching, error)
	CountBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
}

type teachingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTeachingRepo(db *gorm.DB, baseLog *logger.Logger) TeachingRepo {
	repoLog := baseLog.With("repo", "TeachingRepo")
	return &teachingRepo{db: db, log: repoLog}
}

func (r *teachingRepo) Create(ctx context.Context, tx *gorm.DB, teachings []*types.Teaching) ([]*types.Teaching, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(teachings) == 0 {
		return []*types.Teaching{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&teachings).Error; err != nil {
		return nil, err
	}
	return teachings, nil
}

func (r *teachingRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Teaching, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Teaching
	if err := transaction.WithContext(ctx).
		Where("teaching_session_id = ?", sessionID).
		Order("position ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *teachingRepo) CountBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Teaching{}).
		Where("teaching_session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
