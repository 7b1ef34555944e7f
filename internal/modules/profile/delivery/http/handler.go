package handler

import (
	"net/http"

	profile "anoa.com/kudosfeed/internal/modules/profile/service"
	"anoa.com/kudosfeed/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ProfileHandler struct {
	profileService profile.ProfileService
}

func NewProfileHandler(profileService profile.ProfileService) *ProfileHandler {
	return &ProfileHandler{
		profileService: profileService,
	}
}

// GetStats answers for /profile/:id/stats. The id "me" resolves to the caller.
func (h *ProfileHandler) GetStats(c *gin.Context) {
	var userID uuid.UUID
	if raw := c.Param("id"); raw == "me" {
		id, err := response.GetUserID(c)
		if err != nil {
			response.ResponseError(c, err)
			return
		}
		userID = id
	} else {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		userID = id
	}

	stats, err := h.profileService.GetStats(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
