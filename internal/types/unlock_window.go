package types

import (
	"time"

	"github.com/google/uuid"
)

// UnlockWindow is a half-open interval [StartsAt, EndsAt) during which
// a bounded context's lock may be bypassed.
type UnlockWindow struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BoundedContextID uuid.UUID       `gorm:"type:uuid;not null;index" json:"bounded_context_id"`
	BoundedContext   *BoundedContext `gorm:"constraint:OnDelete:CASCADE;foreignKey:BoundedContextID;references:ID" json:"bounded_context,omitempty"`
	StartsAt         time.Time       `gorm:"not null;column:starts_at" json:"starts_at"`
	EndsAt           time.Time       `gorm:"not null;column:ends_at" json:"ends_at"`
	Authorizer       string          `gorm:"column:authorizer" json:"authorizer"`
	Reason           string          `gorm:"column:reason" json:"reason"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
}

func (UnlockWindow) TableName() string {
	return "unlock_window"
}

// Covers reports whether t falls inside the window.
func (w *UnlockWindow) Covers(t time.Time) bool {
	return !t.Before(w.StartsAt) && t.Before(w.EndsAt)
}
