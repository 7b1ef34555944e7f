package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const devSecret = "12345"

var errNoToken = errors.New("authorization required")

// AuthMiddleware accepts tokens minted by the account service. The subject claim
// must be the caller's user id.
type AuthMiddleware struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthMiddleware verifies HMAC tokens signed with secret. An empty secret falls
// back to a development value.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	if secret == "" {
		secret = devSecret
	}
	return &AuthMiddleware{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithExpirationRequired()),
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			unauthorized(c, errNoToken.Error())
			return
		}

		userID, err := m.subject(raw)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set("user_id", userID.String())
		c.Next()
	}
}

func (m *AuthMiddleware) subject(raw string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := m.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.Subject)
}

// bearerToken reads the Authorization header, then the token query parameter
// that browsers use for websocket upgrades.
func bearerToken(c *gin.Context) string {
	if scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " "); ok && scheme == "Bearer" {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
