package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edirooss/firewatch-server/internal/service"
)

func Me(authsvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := authsvc.WhoAmI(c)
		if p == nil {
			c.Status(http.StatusUnauthorized)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":              p.ID,
			"role":            p.Role,
			"credential_type": p.Credential.String(),
		})
	}
}
