package middleware

import (
	"context"
	"net/http"
	"strings"

	"fiddle-chat/agent/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// JWTAuthMiddleware extracts the acting principal from a bearer token
// minted by the external auth service. The agent never issues tokens.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := jwt.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set("principalId", claims.PrincipalID)
		c.Set("displayName", claims.DisplayName)

		ctx := context.WithValue(c.Request.Context(), PrincipalIDKey, claims.PrincipalID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
