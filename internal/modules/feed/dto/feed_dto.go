package dto

import (
	"anoa.com/kudosfeed/internal/model"
	"github.com/google/uuid"
)

type CreateKudosRequest struct {
	Message     string      `json:"message" binding:"max=2000"`
	ReceiverIDs []uuid.UUID `json:"receiver_ids" binding:"required,min=1,max=20"`
	Tags        []string    `json:"tags" binding:"max=10,dive,max=30"`
	ImageURLs   []string    `json:"image_urls" binding:"max=4,dive,url"`
}

type UpdateKudosRequest struct {
	Message string   `json:"message" binding:"max=2000"`
	Tags    []string `json:"tags" binding:"omitempty,max=10,dive,max=30"`
}

type ReactionRequest struct {
	Type string `json:"type" binding:"required,oneof=clap heart fire laugh wow"`
}

type CommentRequest struct {
	Content string `json:"content" binding:"required,max=1000"`
}

type FeedQuery struct {
	Search string `form:"search"`
	Page   int    `form:"page" binding:"min=0"`
}

type FeedPageResponse struct {
	Page  model.FeedPage `json:"page"`
	Phase string         `json:"phase"`
	End   bool           `json:"end"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

// SessionCommand is a message a live feed client sends over the websocket.
type SessionCommand struct {
	Action string `json:"action"` // search, more, refresh
	Search string `json:"search,omitempty"`
}
