package handler

import (
	"net/http"

	"anoa.com/kudosfeed/internal/modules/leaderboard/dto"
	leaderboardRepo "anoa.com/kudosfeed/internal/modules/leaderboard/repository"
	leaderboardService "anoa.com/kudosfeed/internal/modules/leaderboard/service"
	"anoa.com/kudosfeed/pkg/response"
	"github.com/gin-gonic/gin"
)

type LeaderboardHandler struct {
	service leaderboardService.LeaderboardService
}

func NewLeaderboardHandler(service leaderboardService.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	var q dto.LeaderboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BindError(c, err)
		return
	}

	window := leaderboardService.WindowWeek
	if q.Window != "" {
		window = leaderboardService.Window(q.Window)
	}
	mode := leaderboardRepo.ModeReceivers
	if q.Mode != "" {
		mode = leaderboardRepo.Mode(q.Mode)
	}

	c.JSON(http.StatusOK, gin.H{"data": h.service.Get(c.Request.Context(), window, mode)})
}
