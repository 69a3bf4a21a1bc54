package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
)

var (
	ErrCameraNotFound = errors.New("camera not found")

	cameraKeyPrefix = keyPrefix + "camera:"
	cameraNextIDKey = keyPrefix + "camera:next_id"
	cameraIDsKey    = keyPrefix + "cameras" // SET of string IDs
)

func cameraKey(id int64) string { return cameraKeyPrefix + idStr(id) }

// zoneCamerasKey indexes the cameras of one zone.
func zoneCamerasKey(zoneID int64) string { return keyPrefix + "zone:" + idStr(zoneID) + ":cameras" }

func cameraKeys(ids []int64) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cameraKey(id)
	}
	return keys
}

// CameraRepository stores cameras as JSON with a global and a per-zone index.
type CameraRepository struct {
	log    *zap.Logger
	client *RedisClient
}

func newCameraRepository(log *zap.Logger, client *RedisClient) *CameraRepository {
	return &CameraRepository{log: log.Named("cameras"), client: client}
}

// GenerateID increments and returns the next camera ID.
func (r *CameraRepository) GenerateID(ctx context.Context) (int64, error) {
	id, err := r.client.Incr(ctx, cameraNextIDKey).Result()
	if err != nil {
		return 0, fmt.Errorf("incr: %w", err)
	}
	return id, nil
}

// Upsert writes the camera and its index entries. Moving a camera to another
// zone removes it from the old zone index.
func (r *CameraRepository) Upsert(ctx context.Context, c *camera.Camera) error {
	if c.ID <= 0 {
		return errors.New("camera id must be positive")
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	prev, err := r.GetByID(ctx, c.ID)
	if err != nil && !errors.Is(err, ErrCameraNotFound) {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, cameraKey(c.ID), payload, 0)
	pipe.SAdd(ctx, cameraIDsKey, idStr(c.ID))
	if prev != nil && prev.ZoneID != c.ZoneID {
		pipe.SRem(ctx, zoneCamerasKey(prev.ZoneID), idStr(c.ID))
	}
	pipe.SAdd(ctx, zoneCamerasKey(c.ZoneID), idStr(c.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Delete removes a camera and its index entries.
func (r *CameraRepository) Delete(ctx context.Context, id int64) error {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, cameraKey(id))
	pipe.SRem(ctx, cameraIDsKey, idStr(id))
	pipe.SRem(ctx, zoneCamerasKey(c.ZoneID), idStr(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// GetByID returns ErrCameraNotFound if the camera does not exist.
func (r *CameraRepository) GetByID(ctx context.Context, id int64) (*camera.Camera, error) {
	return getJSON[camera.Camera](ctx, r.client, cameraKey(id), ErrCameraNotFound)
}

// GetAll returns every indexed camera ordered by ID. The SMEMBERS and MGET
// calls are not atomic; treat the result as an eventually consistent snapshot.
func (r *CameraRepository) GetAll(ctx context.Context) ([]*camera.Camera, error) {
	return r.byIndex(ctx, cameraIDsKey)
}

// ListByZone returns the cameras of one zone ordered by ID.
func (r *CameraRepository) ListByZone(ctx context.Context, zoneID int64) ([]*camera.Camera, error) {
	return r.byIndex(ctx, zoneCamerasKey(zoneID))
}

func (r *CameraRepository) byIndex(ctx context.Context, key string) ([]*camera.Camera, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	ids, err := parseIDs(members)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return mgetJSON[camera.Camera](ctx, r.client, r.log, cameraKeys(ids))
}
