package model

import "github.com/google/uuid"

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendSame Trend = "same"
	TrendNew  Trend = "new"
)

// LeaderboardEntry is derived per query and never persisted.
type LeaderboardEntry struct {
	UserID     uuid.UUID `json:"user_id"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
	Score      int       `json:"score"`
	Rank       int       `json:"rank"` // 1-based, sequential
	Trend      Trend     `json:"trend"`
}

type Leaderboard struct {
	Window string             `json:"window"`
	Mode   string             `json:"mode"`
	Top3   []LeaderboardEntry `json:"top3"`
	Others []LeaderboardEntry `json:"others"`
}

// StreakState is derived from a user's action history.
type StreakState struct {
	CurrentStreak int `json:"current_streak"`
}
