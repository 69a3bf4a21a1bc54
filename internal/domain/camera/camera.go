// Package camera holds the camera topology: projects own zones, zones own cameras.
package camera

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/edirooss/firewatch-server/pkg/avurl"
	"github.com/edirooss/firewatch-server/pkg/hostutil"
)

// ErrMisconfiguredCamera is returned when a camera has neither a usable custom
// URL nor a complete address/port/path triple.
var ErrMisconfiguredCamera = errors.New("camera is misconfigured")

type Camera struct {
	ID            int64        `json:"id"`              //
	Name          string       `json:"name"`            //
	ZoneID        int64        `json:"zone_id"`         //
	Description   *string      `json:"description"`     // nullable
	Coords        *Coordinates `json:"coords"`          // nullable
	IsFullRTSPURL bool         `json:"is_full_rtsp_url"` // (on true, custom_url required)
	CustomURL     *string      `json:"custom_url"`      // nullable
	Address       *string      `json:"address"`         // nullable, IP literal
	Port          *int         `json:"port"`            // nullable, 1..65535
	Path          *string      `json:"path"`            // nullable
	Username      *string      `json:"username"`        // nullable (on non-null, a source is required)
	Password      *string      `json:"password"`        // nullable (on non-null, username required)
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Endpoint is what the streaming core needs to open a camera.
type Endpoint struct {
	CameraID int64
	Name     string
	URL      string // credentials embedded
}

// Redacted returns the endpoint URL safe for logs.
func (e Endpoint) Redacted() string { return avurl.Redact(e.URL) }

// Validate mirrors the admin form rules: custom mode needs custom_url, triple
// mode needs address, port and path together.
func (c *Camera) Validate() error {
	if len(c.Name) < 1 {
		return errors.New("name must be at least 1 character")
	}
	if len(c.Name) > 100 {
		return errors.New("name must be at most 100 characters")
	}
	if c.ZoneID <= 0 {
		return errors.New("zone_id must be a positive integer")
	}

	if c.IsFullRTSPURL {
		if empty(c.CustomURL) {
			return errors.New("custom_url is required when is_full_rtsp_url is set")
		}
		if len(*c.CustomURL) > 2048 {
			return errors.New("custom_url must be at most 2048 characters")
		}
		if _, err := avurl.ParseSource(*c.CustomURL); err != nil {
			return fmt.Errorf("invalid custom_url: %s", err)
		}
	} else {
		if missing := c.missingTriple(); len(missing) > 0 {
			return fmt.Errorf("missing required fields [%s]", strings.Join(missing, ", "))
		}
		if err := hostutil.ValidateIP(*c.Address); err != nil {
			return fmt.Errorf("invalid address: %s", err)
		}
		if *c.Port < 1 || *c.Port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		if len(*c.Path) > 200 {
			return errors.New("path must be at most 200 characters")
		}
	}

	if c.Username != nil && (len(*c.Username) < 1 || len(*c.Username) > 128) {
		return errors.New("username must be 1..128 characters")
	}
	if c.Password != nil {
		if c.Username == nil {
			return errors.New("password requires username")
		}
		if len(*c.Password) < 1 || len(*c.Password) > 128 {
			return errors.New("password must be 1..128 characters")
		}
	}
	return nil
}

func (c *Camera) missingTriple() []string {
	var missing []string
	if empty(c.Address) {
		missing = append(missing, "address")
	}
	if c.Port == nil {
		missing = append(missing, "port")
	}
	if empty(c.Path) {
		missing = append(missing, "path")
	}
	sort.Strings(missing)
	return missing
}

// SourceURL renders the media URL without credentials. A custom URL wins when
// the camera is in full URL mode; otherwise the triple is rendered as
// rtsp://address:port/path.
func (c *Camera) SourceURL() (string, error) {
	if c.IsFullRTSPURL && !empty(c.CustomURL) {
		return *c.CustomURL, nil
	}
	if !empty(c.Address) && c.Port != nil && *c.Port > 0 && !empty(c.Path) {
		return avurl.RTSP(*c.Address, *c.Port, *c.Path), nil
	}
	return "", fmt.Errorf("%w: camera %d has no source url", ErrMisconfiguredCamera, c.ID)
}

// Endpoint resolves the camera into an openable endpoint with credentials.
func (c *Camera) Endpoint() (Endpoint, error) {
	u, err := c.SourceURL()
	if err != nil {
		return Endpoint{}, err
	}
	var user, pass string
	if c.Username != nil {
		user = *c.Username
	}
	if c.Password != nil {
		pass = *c.Password
	}
	return Endpoint{CameraID: c.ID, Name: c.Name, URL: avurl.WithUserinfo(u, user, pass)}, nil
}

func empty(s *string) bool { return s == nil || *s == "" }
