package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	LockStatusLocked   = "locked"
	LockStatusUnlocked = "unlocked"
)

// BoundedContext is a lockable, versioned unit of structured knowledge,
// independent of profile namespaces. Cost accumulates monotonically.
type BoundedContext struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string         `gorm:"not null;uniqueIndex;column:name" json:"name"`
	Domain          string         `gorm:"column:domain" json:"domain"`
	Description     string         `gorm:"column:description" json:"description"`
	LockStatus      string         `gorm:"not null;column:lock_status" json:"lock_status"`
	Version         int            `gorm:"not null;column:version" json:"version"`
	Cost            float64        `gorm:"not null;column:cost" json:"cost"`
	ComplexityScore float64        `gorm:"not null;column:complexity_score" json:"complexity_score"`
	Payload         datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`

	UnlockWindows    []*UnlockWindow    `gorm:"foreignKey:BoundedContextID" json:"unlock_windows,omitempty"`
	TeachingSessions []*TeachingSession `gorm:"foreignKey:BoundedContextID" json:"teaching_sessions,omitempty"`
}

func (BoundedContext) TableName() string {
	return "bounded_context"
}
