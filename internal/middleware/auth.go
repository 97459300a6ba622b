package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/presence/internal/pkg/jwt"
	"github.com/mx-space/presence/internal/pkg/response"
)

const ContextKeyUserID = "user_id"

// Auth rejects requests without a valid JWT.
func Auth(signer *jwt.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := authenticate(c, signer)
		if !ok {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// OptionalAuth records the user of a valid JWT and lets every request through.
func OptionalAuth(signer *jwt.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := authenticate(c, signer); ok {
			c.Set(ContextKeyUserID, userID)
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, signer *jwt.Signer) (string, bool) {
	token := extractToken(c)
	if token == "" {
		return "", false
	}
	claims, err := signer.Parse(token)
	if err != nil {
		return "", false
	}
	return claims.UserID, true
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
