package types

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_profile_user_name" json:"user_id"`
	User        *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Name        string    `gorm:"not null;uniqueIndex:idx_profile_user_name;column:name" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	IsActive    bool      `gorm:"not null;column:is_active" json:"is_active"`
	IsLocked    bool      `gorm:"not null;column:is_locked" json:"is_locked"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string {
	return "profile"
}
