package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
	"github.com/edirooss/firewatch-server/internal/domain/principal"
	"github.com/edirooss/firewatch-server/internal/repo"
)

func ptr[T any](v T) *T { return &v }

var (
	admin      = &principal.Principal{ID: "root@fw.test", Role: principal.Admin}
	supervisor = &principal.Principal{ID: "sup@fw.test", Role: principal.Supervisor}
	agent      = &principal.Principal{ID: "agent@fw.test", Role: principal.Agent}
	outsider   = &principal.Principal{ID: "nobody@fw.test", Role: principal.Agent}
)

// newFixture seeds two projects:
//
//	project 1 (sup@fw.test)   zone 10: cameras 1, 3
//	project 2 (other@fw.test) zone 20: camera 2; agent@fw.test assigned
func newFixture(t *testing.T) (*repo.Repository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := repo.WrapRedisClient(zap.NewNop(), redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	r := repo.NewRepository(zap.NewNop(), client)

	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(r.Topology.UpsertProject(ctx, &camera.Project{ID: 1, Name: "north", SupervisorID: supervisor.ID, Status: camera.ProjectActive}))
	must(r.Topology.UpsertProject(ctx, &camera.Project{ID: 2, Name: "south", SupervisorID: "other@fw.test", Status: camera.ProjectActive}))
	must(r.Topology.UpsertZone(ctx, &camera.Zone{ID: 10, Name: "gate", ProjectID: 1}))
	must(r.Topology.UpsertZone(ctx, &camera.Zone{ID: 20, Name: "yard", ProjectID: 2}))
	must(r.Topology.AssignAgents(ctx, 2, agent.ID))

	must(r.Cameras.Upsert(ctx, &camera.Camera{ID: 1, Name: "gate-east", ZoneID: 10,
		IsFullRTSPURL: true, CustomURL: ptr("rtsp://10.0.0.1/live")}))
	must(r.Cameras.Upsert(ctx, &camera.Camera{ID: 2, Name: "yard-west", ZoneID: 20,
		Address: ptr("10.0.0.2"), Port: ptr(554), Path: ptr("stream1"),
		Username: ptr("viewer"), Password: ptr("s3cret")}))
	must(r.Cameras.Upsert(ctx, &camera.Camera{ID: 3, Name: "gate-broken", ZoneID: 10}))
	return r, mr
}
