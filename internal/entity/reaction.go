package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reaction is one user's reaction on a kudos. A user holds at most one reaction per kudos.
type Reaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	KudosID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reactions_unique,priority:1" json:"kudos_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reactions_unique,priority:2" json:"user_id"`
	Type      string    `gorm:"size:20;not null" json:"type"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Reaction) TableName() string {
	return TableReactions
}

func (r *Reaction) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID, err = uuid.NewV7()
	}
	return
}
