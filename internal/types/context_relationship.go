package types

import (
	"time"

	"github.com/google/uuid"
)

// ContextRelationship is a non-owning reference from one bounded
// context to a peer. Deleting the peer does not cascade.
type ContextRelationship struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BoundedContextID uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_context_relationship_pair" json:"bounded_context_id"`
	BoundedContext   *BoundedContext `gorm:"constraint:OnDelete:CASCADE;foreignKey:BoundedContextID;references:ID" json:"bounded_context,omitempty"`
	PeerContextID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_context_relationship_pair" json:"peer_context_id"`
	Kind             string          `gorm:"column:kind" json:"kind"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
}

func (ContextRelationship) TableName() string {
	return "context_relationship"
}
