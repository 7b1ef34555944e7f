package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Notification struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index:idx_notifications_inbox,priority:1" json:"recipient_id"`
	SenderID    uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Type        string    `gorm:"size:20;not null" json:"type"` // kudos, reaction, comment, mention
	ResourceID  uuid.UUID `gorm:"type:uuid;not null" json:"resource_id"`
	IsRead      bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_notifications_inbox,priority:2" json:"created_at"`
}

func (Notification) TableName() string {
	return TableNotifications
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}
