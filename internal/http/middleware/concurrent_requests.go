package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LimitConcurrentRequests returns a Gin middleware that limits the number
// of concurrent requests through the routes it guards. If the number of active
// requests exceeds `maxConcurrent`, new requests are rejected with HTTP 429.
// A non-positive limit disables the check.
//
// Guards the stream routes, where each request holds a camera connection
// for as long as the viewer stays.
//
// Example usage:
//
//	api.GET("/cameras/:id/stream", LimitConcurrentRequests(64), h.Stream)
func LimitConcurrentRequests(maxConcurrent int) gin.HandlerFunc {
	if maxConcurrent <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	semaphore := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case semaphore <- struct{}{}:
			defer func() { <-semaphore }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "too many concurrent streams",
			})
		}
	}
}
