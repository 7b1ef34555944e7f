package response

import (
	"errors"
	"net/http"

	"anoa.com/kudosfeed/pkg/apperror"
	"anoa.com/kudosfeed/pkg/ratelimiter"
	"anoa.com/kudosfeed/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userIDStr, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	str, ok := userIDStr.(string)
	if !ok {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	userID, err := uuid.Parse(str)
	if err != nil {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	return userID, nil
}

// ResponseError standardized error response
func ResponseError(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	var rle *ratelimiter.RateLimitError
	if errors.As(err, &rle) {
		c.Header("Retry-After", rle.RetryAfter.String())
	}

	// Log internal errors
	if code >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(code, gin.H{"error": err.Error()})
}

// BindError answers a failed ShouldBind call.
func BindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
}
