package types

import (
	"time"

	"github.com/google/uuid"
)

// TeachingSession is a bounded interaction adding structured knowledge
// to an unlocked context. Cost mirrors the sum of its entries.
type TeachingSession struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BoundedContextID uuid.UUID       `gorm:"type:uuid;not null;index" json:"bounded_context_id"`
	BoundedContext   *BoundedContext `gorm:"constraint:OnDelete:CASCADE;foreignKey:BoundedContextID;references:ID" json:"bounded_context,omitempty"`
	Source           string          `gorm:"column:source" json:"source"`
	Confidence       float64         `gorm:"not null;column:confidence" json:"confidence"`
	Cost             float64         `gorm:"not null;column:cost" json:"cost"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`

	Teachings []*Teaching `gorm:"foreignKey:TeachingSessionID" json:"teachings,omitempty"`
}

func (TeachingSession) TableName() string {
	return "teaching_session"
}
