package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/edirooss/firewatch-server/internal/http/middleware"
	"github.com/edirooss/firewatch-server/internal/service"
	"github.com/edirooss/firewatch-server/internal/stream"
)

// StreamsHandler serves live camera video.
//
// Supported operations:
//   - GET /cameras/{id}/stream   → MJPEG over multipart/x-mixed-replace
//   - GET /cameras/{id}/snapshot → one annotated JPEG
//   - GET /streams               → live sessions (admin)
type StreamsHandler struct {
	log     *zap.Logger
	authsvc *service.AuthService
	dir     *service.CameraDirectory
	streams *service.StreamService
}

func NewStreamsHandler(log *zap.Logger, authsvc *service.AuthService, dir *service.CameraDirectory, streams *service.StreamService) *StreamsHandler {
	return &StreamsHandler{log: log.Named("streams"), authsvc: authsvc, dir: dir, streams: streams}
}

// Stream handles GET /cameras/{id}/stream.
//
// Lookup and access are checked before any byte is written, so failures
// there get a JSON error. Once streaming starts the status is 200 and the
// body ends when the camera gives up or the viewer leaves.
//
// Status Codes:
//   - 200 OK                    → unbounded multipart body
//   - 403 Forbidden
//   - 404 Not Found
//   - 422 Unprocessable Entity  → camera has no usable source
//   - 429 Too Many Requests     → stream cap reached (middleware)
func (h *StreamsHandler) Stream(c *gin.Context) {
	cam, err := h.dir.Authorize(c.Request.Context(), h.authsvc.WhoAmI(c), mw.IDParam(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	ep, err := cam.Endpoint()
	if err != nil {
		abortWithError(c, err)
		return
	}

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", stream.ContentType)
	hdr.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	hdr.Set("Pragma", "no-cache")
	hdr.Set("Expires", "0")
	hdr.Set("X-Accel-Buffering", "no")

	err = h.streams.Serve(c.Request.Context(), ep, c.Writer)
	if err == nil {
		return
	}
	if !c.Writer.Written() {
		// nothing sent yet, report as a regular error
		hdr.Del("Content-Type")
		abortWithError(c, err)
		return
	}
	if !errors.Is(err, stream.ErrStreamExhausted) {
		c.Error(err)
	}
}

// Snapshot handles GET /cameras/{id}/snapshot.
//
// Status Codes:
//   - 200 OK               → image/jpeg
//   - 502 Bad Gateway      → camera unreachable
//   - 504 Gateway Timeout  → no frame in time
func (h *StreamsHandler) Snapshot(c *gin.Context) {
	cam, err := h.dir.Authorize(c.Request.Context(), h.authsvc.WhoAmI(c), mw.IDParam(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	ep, err := cam.Endpoint()
	if err != nil {
		abortWithError(c, err)
		return
	}

	jpg, err := h.streams.Snapshot(c.Request.Context(), ep)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", jpg)
}

// GetActiveStreams handles GET /streams.
func (h *StreamsHandler) GetActiveStreams(c *gin.Context) {
	active := h.streams.Active()
	c.Header("X-Total-Count", strconv.Itoa(len(active)))
	c.JSON(http.StatusOK, active)
}
