package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TableUsers          = "users"
	TableProfiles       = "profiles"
	TableKudos          = "kudos"
	TableKudosReceivers = "kudos_receivers"
	TableReactions      = "reactions"
	TableComments       = "comments"
	TableNotifications  = "notifications"
)

type Kudos struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null;index" json:"sender_id"`
	Message   string    `gorm:"type:text" json:"message"`
	Tags      []string  `gorm:"type:text;serializer:json" json:"tags"`
	ImageURLs []string  `gorm:"type:text;serializer:json" json:"image_urls"`
	// TagText holds the tags for text search, one lowercased tag per line.
	TagText   string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Kudos) TableName() string {
	return TableKudos
}

func (k *Kudos) BeforeCreate(tx *gorm.DB) (err error) {
	k.TagText = JoinTags(k.Tags)
	if k.ID == uuid.Nil {
		k.ID, err = uuid.NewV7()
	}
	return
}

// JoinTags renders tags for the tag_text column. A search term without a newline
// can only match inside a single tag.
func JoinTags(tags []string) string {
	lines := make([]string, 0, len(tags))
	for _, tag := range tags {
		lines = append(lines, strings.ToLower(strings.ReplaceAll(tag, "\n", " ")))
	}
	return strings.Join(lines, "\n")
}

// KudosReceiver links a kudos to one recipient. CreatedAt mirrors the kudos so
// received-kudos tallies can be windowed without a join.
type KudosReceiver struct {
	KudosID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"kudos_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (KudosReceiver) TableName() string {
	return TableKudosReceivers
}

type Comment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	KudosID   uuid.UUID `gorm:"type:uuid;not null;index" json:"kudos_id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null" json:"author_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Comment) TableName() string {
	return TableComments
}

func (c *Comment) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID, err = uuid.NewV7()
	}
	return
}

// All lists every row type owned by this service, in migration order.
func All() []any {
	return []any{
		&User{},
		&Profile{},
		&Kudos{},
		&KudosReceiver{},
		&Reaction{},
		&Comment{},
		&Notification{},
	}
}
