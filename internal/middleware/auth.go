package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/auth"
)

const (
	UserIDKey   = "userID"
	UsernameKey = "username"
)

// TokenValidator resolves a bearer token into an identity.
type TokenValidator interface {
	Validate(token string) (auth.Identity, error)
}

// AuthMiddleware validates the Authorization header against the shared JWT secret.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		id, err := validator.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, id.UserID)
		c.Set(UsernameKey, id.Username)
		c.Next()
	}
}

// Identity returns the caller stored by AuthMiddleware.
func Identity(c *gin.Context) auth.Identity {
	return auth.Identity{UserID: c.GetInt(UserIDKey), Username: c.GetString(UsernameKey)}
}
