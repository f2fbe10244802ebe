package types

import (
	"time"

	"github.com/google/uuid"
)

// User carries the active-profile pointer. A nil pointer means the
// default namespace is active.
type User struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email           string     `gorm:"uniqueIndex;not null;column:email" json:"email"`
	ActiveProfileID *uuid.UUID `gorm:"type:uuid;column:active_profile_id" json:"active_profile_id,omitempty"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
