package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const idParamKey = "id_param"

// RequireValidID ensures the path param ":id" is a valid int > 0 and stores
// it for IDParam.
func RequireValidID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "id must be a positive integer"})
			return
		}
		c.Set(idParamKey, id)
		c.Next()
	}
}

// IDParam returns the id validated by RequireValidID.
func IDParam(c *gin.Context) int64 {
	return c.GetInt64(idParamKey)
}
