package dto

import "anoa.com/kudosfeed/internal/model"

// RecognitionLevel is a permanent tier earned from all-time kudos received, plus a
// label for how much recognition came in over the last seven days.
type RecognitionLevel struct {
	Name        string  `json:"name"`
	NextLevel   string  `json:"next_level"`
	Received    int     `json:"received"`
	Target      int     `json:"target"`
	Progress    float64 `json:"progress"` // percent towards Target
	WeeklyCount int     `json:"weekly_count"`
	WeeklyLabel string  `json:"weekly_label"`
}

// StatsResponse is returned when viewing a user's profile stats
type StatsResponse struct {
	User          model.UserSummary `json:"user"`
	KudosSent     int               `json:"kudos_sent"`
	KudosReceived int               `json:"kudos_received"`
	Streak        model.StreakState `json:"streak"`
	Level         RecognitionLevel  `json:"level"`
}
