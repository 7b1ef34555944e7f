package dto

// LeaderboardQuery selects the time window and what is counted.
type LeaderboardQuery struct {
	Window string `form:"window" binding:"omitempty,oneof=week month all"`
	Mode   string `form:"mode" binding:"omitempty,oneof=givers receivers"`
}
