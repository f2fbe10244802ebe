package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

type ProfileKnowledgeStateRepo interface {
	Create(ctx context.Context, tx *gorm.DB, states []*types.ProfileKnowledgeState) ([]*types.ProfileKnowledgeState, error)
	GetByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) (*types.ProfileKnowledgeState, error)
	// UpdatePayload replaces the payload and bumps the version counter.
	UpdatePayload(ctx context.Context, tx *gorm.DB, profileID uuid.UUID, payload datatypes.JSON) error
	DeleteByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) error
}

type profileKnowledgeStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileKnowledgeStateRepo(db *gorm.DB, baseLog *logger.Logger) ProfileKnowledgeStateRepo {
	repoLog := baseLog.With("repo", "ProfileKnowledgeStateRepo")
	return &profileKnowledgeStateRepo{db: db, log: repoLog}
}

func (r *profileKnowledgeStateRepo) Create(ctx context.Context, tx *gorm.DB, states []*types.ProfileKnowledgeState) ([]*types.ProfileKnowledgeState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(states) == 0 {
		return []*types.ProfileKnowledgeState{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (r *profileKnowledgeStateRepo) GetByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) (*types.ProfileKnowledgeState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ProfileKnowledgeState
	if err := transaction.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *profileKnowledgeStateRepo) UpdatePayload(ctx context.Context, tx *gorm.DB, profileID uuid.UUID, payload datatypes.JSON) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.ProfileKnowledgeState{}).
		Where("profile_id = ?", profileID).
		Updates(map[string]interface{}{
			"payload":      payload,
			"version":      gorm.Expr("version + 1"),
			"last_updated": time.Now().UTC(),
		}).Error
}

func (r *profileKnowledgeStateRepo) DeleteByProfileID(ctx context.Context, tx *gorm.DB, profileID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Delete(&types.ProfileKnowledgeState{}).Error
}
