package types

import (
	"time"

	"github.com/google/uuid"
)

// ContextMessage is one conversation turn scoped by (user_id, namespace_id).
type ContextMessage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index:idx_context_message_scope" json:"user_id"`
	NamespaceID uuid.UUID `gorm:"type:uuid;not null;index:idx_context_message_scope" json:"namespace_id"`
	Role        string    `gorm:"not null;column:role" json:"role"`
	Content     string    `gorm:"column:content" json:"content"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (ContextMessage) TableName() string {
	return "context_message"
}
