package dto

import (
	"strconv"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
	"github.com/edirooss/firewatch-server/pkg/avurl"
)

// CameraView is the camera as listed to viewers. Credentials are never
// returned; HasCredentials tells the admin UI whether some are stored.
type CameraView struct {
	ID             int64               `json:"id"`
	Name           string              `json:"name"`
	ZoneID         int64               `json:"zone_id"`
	Description    *string             `json:"description"`
	Coords         *camera.Coordinates `json:"coords"`
	IsFullRTSPURL  bool                `json:"is_full_rtsp_url"`
	Source         string              `json:"source"` // redacted source url, empty if misconfigured
	HasCredentials bool                `json:"has_credentials"`
	StreamURL      string              `json:"stream_url"`
	SnapshotURL    string              `json:"snapshot_url"`
}

func NewCameraView(c *camera.Camera) CameraView {
	v := CameraView{
		ID:             c.ID,
		Name:           c.Name,
		ZoneID:         c.ZoneID,
		Description:    c.Description,
		Coords:         c.Coords,
		IsFullRTSPURL:  c.IsFullRTSPURL,
		HasCredentials: c.Username != nil && *c.Username != "",
	}
	base := "/api/cameras/" + strconv.FormatInt(c.ID, 10)
	v.StreamURL = base + "/stream"
	v.SnapshotURL = base + "/snapshot"
	if u, err := c.SourceURL(); err == nil {
		v.Source = avurl.Redact(u)
	}
	return v
}

func NewCameraViews(cs []*camera.Camera) []CameraView {
	out := make([]CameraView, 0, len(cs))
	for _, c := range cs {
		out = append(out, NewCameraView(c))
	}
	return out
}
