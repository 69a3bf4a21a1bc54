// Package repo persists the camera directory, accounts and bearer tokens in Redis.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "fw:"

type Repository struct {
	log    *zap.Logger
	client *RedisClient

	Cameras    *CameraRepository
	Topology   *TopologyRepository
	Users      *UserRepository
	Principals *PrincipalRepository
}

func NewRepository(log *zap.Logger, client *RedisClient) *Repository {
	log = log.Named("repo")
	return &Repository{
		log:        log,
		client:     client,
		Cameras:    newCameraRepository(log, client),
		Topology:   newTopologyRepository(log, client),
		Users:      newUserRepository(log, client),
		Principals: newPrincipalRepository(log, client),
	}
}

func (r *Repository) Client() *RedisClient { return r.client }

func idStr(id int64) string { return strconv.FormatInt(id, 10) }

func parseIDs(ss []string) ([]int64, error) {
	out := make([]int64, 0, len(ss))
	for _, s := range ss {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q in index: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// getJSON reads key into a new T. notFound is returned when the key is absent.
func getJSON[T any](ctx context.Context, c *RedisClient, key string, notFound error) (*T, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// mgetJSON reads keys in one round trip. Missing keys are logged and skipped;
// they are eventual-consistency artifacts between an index and its records.
func mgetJSON[T any](ctx context.Context, c *RedisClient, log *zap.Logger, keys []string) ([]*T, error) {
	if len(keys) == 0 {
		return []*T{}, nil
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	out := make([]*T, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			log.Warn("record missing during MGET", zap.String("key", keys[i]))
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("key %s: unexpected type %T", keys[i], v)
		}
		var rec T
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("key %s: decode: %w", keys[i], err)
		}
		out = append(out, &rec)
	}
	return out, nil
}
