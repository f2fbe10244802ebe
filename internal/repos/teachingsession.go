package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

type TeachingSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, sessions []*types.TeachingSession) ([]*types.TeachingSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.TeachingSession, error)
	GetByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) ([]*types.TeachingSession, error)
	AddCost(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, delta float64) error
	CountByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) (int64, error)
	CountAll(ctx context.Context, tx *gorm.DB) (int64, error)
}

type teachingSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTeachingSessionRepo(db *gorm.DB, baseLog *logger.Logger) TeachingSessionRepo {
	repoLog := baseLog.With("repo", "TeachingSessionRepo")
	return &teachingSessionRepo{db: db, log: repoLog}
}

func (r *teachingSessionRepo) Create(ctx context.Context, tx *gorm.DB, sessions []*types.TeachingSession) ([]*types.TeachingSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sessions) == 0 {
		return []*types.TeachingSession{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *teachingSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.TeachingSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TeachingSession
	if err := transaction.WithContext(ctx).
		Where("id = ?", sessionID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *teachingSessionRepo) GetByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) ([]*types.TeachingSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TeachingSession
	if err := transaction.WithContext(ctx).
		Where("bounded_context_id = ?", contextID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *teachingSessionRepo) AddCost(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, delta float64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.TeachingSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"cost":       gorm.Expr("cost + ?", delta),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *teachingSessionRepo) CountByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.TeachingSession{}).
		Where("bounded_context_id = ?", contextID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *teachingSessionRepo) CountAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.TeachingSession{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
