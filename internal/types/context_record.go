package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ContextRecord is a reference item scoped by (user_id, namespace_id).
// NamespaceID uuid.Nil is the shared default namespace; any other value
// is a profile id. A record lives in exactly one namespace.
type ContextRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_context_record_scope" json:"user_id"`
	NamespaceID uuid.UUID      `gorm:"type:uuid;not null;index:idx_context_record_scope" json:"namespace_id"`
	Title       string         `gorm:"column:title" json:"title"`
	Content     string         `gorm:"column:content" json:"content"`
	Source      string         `gorm:"column:source" json:"source"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (ContextRecord) TableName() string {
	return "context_record"
}
