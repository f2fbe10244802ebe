package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

type ContextRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, records []*types.ContextRecord) ([]*types.ContextRecord, error)
	GetByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) ([]*types.ContextRecord, error)
	GetByIDInScope(ctx context.Context, tx *gorm.DB, userID, namespaceID, recordID uuid.UUID) (*types.ContextRecord, error)
	CountByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) (int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, userID, namespaceID, recordID uuid.UUID, updates map[string]interface{}) (int64, error)
	DeleteByIDInScope(ctx context.Context, tx *gorm.DB, userID, namespaceID, recordID uuid.UUID) (int64, error)
	DeleteByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) (int64, error)
	// MoveNamespace reassigns every record in the from namespace to the
	// to namespace in a single statement. Returns rows moved.
	MoveNamespace(ctx context.Context, tx *gorm.DB, userID, from, to uuid.UUID) (int64, error)
}

type contextRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContextRecordRepo(db *gorm.DB, baseLog *logger.Logger) ContextRecordRepo {
	repoLog := baseLog.With("repo", "ContextRecordRepo")
	return &contextRecordRepo{db: db, log: repoLog}
}

func (r *contextRecordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.ContextRecord) ([]*types.ContextRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(records) == 0 {
		return []*types.ContextRecord{}, nil
	}
	// Keep batches small because Content is large
	const batchSize = 100
	if err := transaction.WithContext(ctx).CreateInBatches(records, batchSize).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *contextRecordRepo) GetByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) ([]*types.ContextRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ContextRecord
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND namespace_id = ?", userID, namespaceID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *contextRecordRepo) GetByIDInScope(ctx context.Context, tx *gorm.DB, userID, namespaceID, recordID uuid.UUID) (*types.ContextRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ContextRecord
	if err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ? AND namespace_id = ?", recordID, userID, namespaceID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *contextRecordRepo) CountByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.ContextRecord{}).
		Where("user_id = ? AND namespace_id = ?", userID, namespaceID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *contextRecordRepo) UpdateFields(ctx context.Context, tx *gorm.DB, userID, namespaceID, recordID uuid.UUID, updates map[string]interface{}) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.ContextRecord{}).
		Where("id = ? AND user_id = ? AND namespace_id = ?", recordID, userID, namespaceID).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *contextRecordRepo) DeleteByIDInScope(ctx context.Context, tx *gorm.DB, userID, namespaceID, recordID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ? AND namespace_id = ?", recordID, userID, namespaceID).
		Delete(&types.ContextRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *contextRecordRepo) DeleteByScope(ctx context.Context, tx *gorm.DB, userID, namespaceID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("user_id = ? AND namespace_id = ?", userID, namespaceID).
		Delete(&types.ContextRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *contextRecordRepo) MoveNamespace(ctx context.Context, tx *gorm.DB, userID, from, to uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if from == to {
		return 0, nil
	}
	res := transaction.WithContext(ctx).
		Model(&types.ContextRecord{}).
		Where("user_id = ? AND namespace_id = ?", userID, from).
		Update("namespace_id", to)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
