package dto

type ListQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}
