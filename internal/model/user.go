package model

import "github.com/google/uuid"

// UserSummary is the display data attached to leaderboard rows and cards.
type UserSummary struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
}
