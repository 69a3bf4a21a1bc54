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
	ErrProjectNotFound = errors.New("project not found")
	ErrZoneNotFound    = errors.New("zone not found")
)

func projectKey(id int64) string       { return keyPrefix + "project:" + idStr(id) }
func projectAgentsKey(id int64) string { return keyPrefix + "project:" + idStr(id) + ":agents" }
func projectZonesKey(id int64) string  { return keyPrefix + "project:" + idStr(id) + ":zones" }
func zoneKey(id int64) string          { return keyPrefix + "zone:" + idStr(id) }

// TopologyRepository stores projects, their zones and their assigned agents.
type TopologyRepository struct {
	log    *zap.Logger
	client *RedisClient
}

func newTopologyRepository(log *zap.Logger, client *RedisClient) *TopologyRepository {
	return &TopologyRepository{log: log.Named("topology"), client: client}
}

func (r *TopologyRepository) UpsertProject(ctx context.Context, p *camera.Project) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := r.client.Set(ctx, projectKey(p.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("set project %d: %w", p.ID, err)
	}
	return nil
}

func (r *TopologyRepository) GetProject(ctx context.Context, id int64) (*camera.Project, error) {
	return getJSON[camera.Project](ctx, r.client, projectKey(id), ErrProjectNotFound)
}

// UpsertZone writes the zone and indexes it under its project.
func (r *TopologyRepository) UpsertZone(ctx context.Context, z *camera.Zone) error {
	payload, err := json.Marshal(z)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, zoneKey(z.ID), payload, 0)
	pipe.SAdd(ctx, projectZonesKey(z.ProjectID), idStr(z.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (r *TopologyRepository) GetZone(ctx context.Context, id int64) (*camera.Zone, error) {
	return getJSON[camera.Zone](ctx, r.client, zoneKey(id), ErrZoneNotFound)
}

// ListZones returns the zones of a project ordered by ID.
func (r *TopologyRepository) ListZones(ctx context.Context, projectID int64) ([]*camera.Zone, error) {
	members, err := r.client.SMembers(ctx, projectZonesKey(projectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	ids, err := parseIDs(members)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = zoneKey(id)
	}
	return mgetJSON[camera.Zone](ctx, r.client, r.log, keys)
}

// AssignAgents adds agents (user ids) to a project.
func (r *TopologyRepository) AssignAgents(ctx context.Context, projectID int64, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]any, len(userIDs))
	for i, u := range userIDs {
		members[i] = u
	}
	if err := r.client.SAdd(ctx, projectAgentsKey(projectID), members...).Err(); err != nil {
		return fmt.Errorf("sadd agents: %w", err)
	}
	return nil
}

func (r *TopologyRepository) UnassignAgent(ctx context.Context, projectID int64, userID string) error {
	if err := r.client.SRem(ctx, projectAgentsKey(projectID), userID).Err(); err != nil {
		return fmt.Errorf("srem agent: %w", err)
	}
	return nil
}

func (r *TopologyRepository) IsAgentAssigned(ctx context.Context, projectID int64, userID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, projectAgentsKey(projectID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("sismember: %w", err)
	}
	return ok, nil
}
