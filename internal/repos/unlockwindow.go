package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

type UnlockWindowRepo interface {
	Create(ctx context.Context, tx *gorm.DB, windows []*types.UnlockWindow) ([]*types.UnlockWindow, error)
	GetByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) ([]*types.UnlockWindow, error)
	// CoveringExists reports whether any window for the context covers t.
	CoveringExists(ctx context.Context, tx *gorm.DB, contextID uuid.UUID, t time.Time) (bool, error)
	CountByContextIDs(ctx context.Context, tx *gorm.DB, contextIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type unlockWindowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnlockWindowRepo(db *gorm.DB, baseLog *logger.Logger) UnlockWindowRepo {
	repoLog := baseLog.With("repo", "UnlockWindowRepo")
	return &unlockWindowRepo{db: db, log: repoLog}
}

func (r *unlockWindowRepo) Create(ctx context.Context, tx *gorm.DB, windows []*types.UnlockWindow) ([]*types.UnlockWindow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(windows) == 0 {
		return []*types.UnlockWindow{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&windows).Error; err != nil {
		return nil, err
	}
	return windows, nil
}

func (r *unlockWindowRepo) GetByContextID(ctx context.Context, tx *gorm.DB, contextID uuid.UUID) ([]*types.UnlockWindow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.UnlockWindow
	if err := transaction.WithContext(ctx).
		Where("bounded_context_id = ?", contextID).
		Order("starts_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *unlockWindowRepo) CoveringExists(ctx context.Context, tx *gorm.DB, contextID uuid.UUID, t time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.UnlockWindow{}).
		Where("bounded_context_id = ? AND starts_at <= ? AND ends_at > ?", contextID, t, t).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *unlockWindowRepo) CountByContextIDs(ctx context.Context, tx *gorm.DB, contextIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID]int64, len(contextIDs))
	if len(contextIDs) == 0 {
		return out, nil
	}
	type row struct {
		BoundedContextID uuid.UUID
		N                int64
	}
	var rows []row
	if err := transaction.WithContext(ctx).
		Model(&types.UnlockWindow{}).
		Select("bounded_context_id, COUNT(*) AS n").
		Where("bounded_context_id IN ?", contextIDs).
		Group("bounded_context_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, rw := range rows {
		out[rw.BoundedContextID] = rw.N
	}
	return out, nil
}
