package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
	"github.com/edirooss/firewatch-server/internal/repo"
	"github.com/edirooss/firewatch-server/internal/service"
	"github.com/edirooss/firewatch-server/internal/stream"
)

// statusOf maps service and domain sentinels to an HTTP status and a message
// safe to return to the client.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, repo.ErrCameraNotFound):
		return http.StatusNotFound, "camera not found"
	case errors.Is(err, repo.ErrZoneNotFound):
		return http.StatusNotFound, "zone not found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, camera.ErrMisconfiguredCamera):
		return http.StatusUnprocessableEntity, "camera has no usable source configured"
	case errors.Is(err, service.ErrSnapshotTimeout):
		return http.StatusGatewayTimeout, "camera did not deliver a frame in time"
	case errors.Is(err, stream.ErrStreamExhausted), errors.Is(err, stream.ErrSourceUnreachable):
		return http.StatusBadGateway, "camera unreachable"
	case errors.Is(err, service.ErrShuttingDown):
		return http.StatusServiceUnavailable, "server is shutting down"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// abortWithError records err for the access log and writes the mapped status.
func abortWithError(c *gin.Context, err error) {
	c.Error(err)
	status, msg := statusOf(err)
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}
