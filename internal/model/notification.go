package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationKudos    NotificationType = "kudos"
	NotificationReaction NotificationType = "reaction"
	NotificationComment  NotificationType = "comment"
	NotificationMention  NotificationType = "mention"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationKudos, NotificationReaction, NotificationComment, NotificationMention:
		return true
	}
	return false
}

type Notification struct {
	ID          uuid.UUID        `json:"id"`
	RecipientID uuid.UUID        `json:"recipient_id"`
	SenderID    uuid.UUID        `json:"sender_id"`
	Type        NotificationType `json:"type"`
	ResourceID  uuid.UUID        `json:"resource_id"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}
