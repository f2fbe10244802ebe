package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProfileKnowledgeState is the versioned structured payload attached to
// a profile. Version starts at 1 and only grows.
type ProfileKnowledgeState struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProfileID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"profile_id"`
	Profile     *Profile       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProfileID;references:ID" json:"profile,omitempty"`
	Payload     datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	Version     int            `gorm:"not null;column:version" json:"version"`
	LastUpdated time.Time      `gorm:"not null;column:last_updated" json:"last_updated"`
}

func (ProfileKnowledgeState) TableName() string {
	return "profile_knowledge_state"
}
