package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edirooss/firewatch-server/internal/service"
)

// Authentication allows access if either a bearer token or a session cookie
// resolves to a principal. Responds with 401 Unauthorized otherwise.
//
// A request carrying an Authorization header is judged on the token alone.
func Authentication(authsvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if _, ok := authsvc.AuthenticateWithBearerToken(c, token); !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
				return
			}
			c.Next()
			return
		}

		if _, ok := authsvc.AuthenticateWithSession(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
			return
		}
		c.Next()
	}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true // present but malformed, rejected by the caller
	}
	return strings.TrimSpace(token), true
}
