package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/pkg/auth"
	"github.com/redis/go-redis/v9"
)

// IdentityKey is the gin context key holding the caller's model.Identity
const IdentityKey = "identity"

// AuthMiddleware validates JWT tokens and injects the caller identity into
// context. rdb may be nil, which disables the revocation check.
func AuthMiddleware(jwtManager *auth.JWTManager, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required. Use: Bearer <token>"})
			return
		}

		// Check blacklist
		if rdb != nil {
			exists, err := rdb.Exists(c.Request.Context(), "blacklist:"+tokenString).Result()
			if err != nil {
				// Fail closed
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Auth server error"})
				return
			}
			if exists > 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
				return
			}
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		// Store caller for downstream handlers
		c.Set(IdentityKey, claims.Identity())

		c.Next()
	}
}

// Identity returns the caller set by AuthMiddleware
func Identity(c *gin.Context) model.Identity {
	return c.MustGet(IdentityKey).(model.Identity)
}

// bearerToken reads the token from the Authorization header, or from the
// token query parameter for websocket upgrades where browsers cannot set headers
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return c.Query("token")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
