package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Teaching is one ordered entry within a teaching session.
type Teaching struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	TeachingSessionID uuid.UUID        `gorm:"type:uuid;not null;index" json:"teaching_session_id"`
	TeachingSession   *TeachingSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:TeachingSessionID;references:ID" json:"teaching_session,omitempty"`
	Position          int              `gorm:"not null;column:position" json:"position"`
	Input             string           `gorm:"column:input" json:"input"`
	Learned           datatypes.JSON   `gorm:"type:jsonb;column:learned" json:"learned"`
	Confidence        float64          `gorm:"not null;column:confidence" json:"confidence"`
	Cost              float64          `gorm:"not null;column:cost" json:"cost"`
	CreatedAt         time.Time        `gorm:"not null" json:"created_at"`
}

func (Teaching) TableName() string {
	return "teaching"
}
