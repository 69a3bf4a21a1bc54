package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
	"github.com/edirooss/firewatch-server/internal/domain/principal"
	"github.com/edirooss/firewatch-server/internal/repo"
)

type DirectoryOptions struct {
	// TTL controls how long the camera list snapshot is served; default 2s.
	TTL time.Duration
	// RefreshTimeout bounds Redis work for a single refresh; default 1s.
	RefreshTimeout time.Duration
	// Allow serving stale on refresh error (graceful degrade).
	AllowStaleOnError bool
}

func (o *DirectoryOptions) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 2 * time.Second
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = time.Second
	}
}

// CameraDirectory resolves cameras for handlers. Listing is served from a
// short-lived snapshot; single lookups are coalesced per camera id.
type CameraDirectory struct {
	log    *zap.Logger
	repo   *repo.Repository
	access *AccessPolicy

	mu      sync.RWMutex
	cache   []*camera.Camera
	expires time.Time

	opts DirectoryOptions
	now  func() time.Time

	sg singleflight.Group
}

func NewCameraDirectory(log *zap.Logger, r *repo.Repository, access *AccessPolicy, opts DirectoryOptions) *CameraDirectory {
	opts.setDefaults()
	return &CameraDirectory{
		log:    log.Named("camera_directory"),
		repo:   r,
		access: access,
		opts:   opts,
		now:    time.Now,
	}
}

// Get returns the camera with id. ErrCameraNotFound if absent.
func (d *CameraDirectory) Get(ctx context.Context, id int64) (*camera.Camera, error) {
	v, err, _ := d.sg.Do("camera:"+strconv.FormatInt(id, 10), func() (any, error) {
		return d.repo.Cameras.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	c := *v.(*camera.Camera)
	return &c, nil
}

// Resolve returns the streaming endpoint of camera id.
// Errors: repo.ErrCameraNotFound, camera.ErrMisconfiguredCamera.
func (d *CameraDirectory) Resolve(ctx context.Context, id int64) (camera.Endpoint, error) {
	c, err := d.Get(ctx, id)
	if err != nil {
		return camera.Endpoint{}, err
	}
	return c.Endpoint()
}

// Authorize loads camera id and checks that p may view it.
// Errors: repo.ErrCameraNotFound, ErrForbidden.
func (d *CameraDirectory) Authorize(ctx context.Context, p *principal.Principal, id int64) (*camera.Camera, error) {
	c, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := d.access.CanView(ctx, p, c)
	if err != nil {
		return nil, fmt.Errorf("access: %w", err)
	}
	if !ok {
		return nil, ErrForbidden
	}
	return c, nil
}

// ListAccessible returns every camera p may view, ordered by id.
func (d *CameraDirectory) ListAccessible(ctx context.Context, p *principal.Principal) ([]*camera.Camera, error) {
	all, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return d.access.Filter(ctx, p, all)
}

// ListZone returns the cameras of zone.
// Errors: repo.ErrZoneNotFound, ErrForbidden.
func (d *CameraDirectory) ListZone(ctx context.Context, p *principal.Principal, zoneID int64) ([]*camera.Camera, error) {
	if _, err := d.repo.Topology.GetZone(ctx, zoneID); err != nil {
		return nil, err
	}
	ok, err := d.access.CanViewZone(ctx, p, zoneID)
	if err != nil {
		return nil, fmt.Errorf("access: %w", err)
	}
	if !ok {
		return nil, ErrForbidden
	}
	return d.repo.Cameras.ListByZone(ctx, zoneID)
}

// Invalidate drops the list snapshot.
func (d *CameraDirectory) Invalidate() {
	d.mu.Lock()
	d.cache = nil
	d.expires = time.Time{}
	d.mu.Unlock()
}

func (d *CameraDirectory) snapshot(ctx context.Context) ([]*camera.Camera, error) {
	if out, ok := d.fresh(); ok {
		return out, nil
	}

	v, err, _ := d.sg.Do("cameras", func() (any, error) {
		// Double-check freshness after we won the flight
		if out, ok := d.fresh(); ok {
			return out, nil
		}

		ctx, cancel := context.WithTimeout(ctx, d.opts.RefreshTimeout)
		defer cancel()

		data, err := d.repo.Cameras.GetAll(ctx)
		if err != nil {
			if d.opts.AllowStaleOnError {
				d.mu.RLock()
				stale := d.cache
				d.mu.RUnlock()
				if stale != nil {
					d.log.Warn("camera refresh failed; serving stale", zap.Error(err))
					return stale, nil
				}
			}
			return nil, fmt.Errorf("list cameras: %w", err)
		}
		if data == nil {
			data = []*camera.Camera{}
		}

		d.mu.Lock()
		d.cache = data
		d.expires = d.now().Add(d.opts.TTL)
		d.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneCameras(v.([]*camera.Camera)), nil
}

func (d *CameraDirectory) fresh() ([]*camera.Camera, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.cache != nil && d.now().Before(d.expires) {
		return cloneCameras(d.cache), true
	}
	return nil, false
}

func cloneCameras(in []*camera.Camera) []*camera.Camera {
	out := make([]*camera.Camera, len(in))
	copy(out, in)
	return out
}

// IsNotFound reports lookup misses from the directory.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrCameraNotFound) || errors.Is(err, repo.ErrZoneNotFound)
}
