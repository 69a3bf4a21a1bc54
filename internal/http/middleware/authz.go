package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edirooss/firewatch-server/internal/domain/principal"
	"github.com/edirooss/firewatch-server/internal/service"
)

// Authorization returns middleware that permits access only if the authenticated
// Principal's role is in the allowed list. Otherwise responds with 403 Forbidden.
func Authorization(authsvc *service.AuthService, allowed ...principal.Role) gin.HandlerFunc {
	allowedSet := make(map[principal.Role]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		p := authsvc.WhoAmI(c)
		if p == nil {
			// authentication middleware was not applied
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		if _, ok := allowedSet[p.Role]; !ok {
			// Authenticated but not authorized
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden"})
			return
		}

		c.Next()
	}
}
