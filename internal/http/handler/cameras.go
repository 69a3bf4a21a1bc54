package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/http/dto"
	mw "github.com/edirooss/firewatch-server/internal/http/middleware"
	"github.com/edirooss/firewatch-server/internal/service"
)

// CamerasHandler serves the camera directory to viewers.
//
// Supported operations:
//   - GET /cameras            → cameras visible to the caller
//   - GET /cameras/{id}       → one camera
//   - GET /zones/{id}/cameras → cameras of one zone
type CamerasHandler struct {
	log     *zap.Logger
	authsvc *service.AuthService
	dir     *service.CameraDirectory
}

func NewCamerasHandler(log *zap.Logger, authsvc *service.AuthService, dir *service.CameraDirectory) *CamerasHandler {
	return &CamerasHandler{log: log.Named("cameras"), authsvc: authsvc, dir: dir}
}

// GetCameraList handles GET /cameras.
//
// Behavior:
//   - Returns the cameras the caller may view, ordered by id.
//   - Adds `X-Total-Count` header.
func (h *CamerasHandler) GetCameraList(c *gin.Context) {
	cams, err := h.dir.ListAccessible(c.Request.Context(), h.authsvc.WhoAmI(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(len(cams)))
	c.JSON(http.StatusOK, dto.NewCameraViews(cams))
}

// GetCamera handles GET /cameras/{id}.
//
// Status Codes:
//   - 200 OK
//   - 403 Forbidden  → camera outside the caller's projects
//   - 404 Not Found
func (h *CamerasHandler) GetCamera(c *gin.Context) {
	cam, err := h.dir.Authorize(c.Request.Context(), h.authsvc.WhoAmI(c), mw.IDParam(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCameraView(cam))
}

// GetZoneCameras handles GET /zones/{id}/cameras, the list behind the
// zone wall view which then opens one stream per camera.
func (h *CamerasHandler) GetZoneCameras(c *gin.Context) {
	cams, err := h.dir.ListZone(c.Request.Context(), h.authsvc.WhoAmI(c), mw.IDParam(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(len(cams)))
	c.JSON(http.StatusOK, dto.NewCameraViews(cams))
}
