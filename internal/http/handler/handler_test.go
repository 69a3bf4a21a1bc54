package handler

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
	"github.com/edirooss/firewatch-server/internal/domain/principal"
	mw "github.com/edirooss/firewatch-server/internal/http/middleware"
	"github.com/edirooss/firewatch-server/internal/repo"
	"github.com/edirooss/firewatch-server/internal/service"
	"github.com/edirooss/firewatch-server/internal/stream"
)

func ptr[T any](v T) *T { return &v }

const (
	adminToken = "tok-admin"
	supToken   = "tok-sup"
	agentToken = "tok-agent"
)

type testServer struct {
	router  *gin.Engine
	streams *service.StreamService
}

// frameSource yields an 8x8 gray frame every few milliseconds.
type frameSource struct{}

func (frameSource) Read(ctx context.Context) (*stream.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Millisecond):
	}
	return &stream.Frame{Timestamp: time.Now(), Image: image.NewGray(image.Rect(0, 0, 8, 8))}, nil
}

func (frameSource) Close() error { return nil }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := repo.WrapRedisClient(zap.NewNop(), redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	r := repo.NewRepository(zap.NewNop(), client)
	seed(t, r)

	log := zap.NewNop()
	sess := service.NewCookieUserSessionService(service.UserSessionConfig{Secret: "0123456789abcdef0123456789abcdef"})
	authsvc := service.NewAuthService(log, r, sess)
	dir := service.NewCameraDirectory(log, r, service.NewAccessPolicy(log, r.Topology), service.DirectoryOptions{})

	opener := stream.OpenerFunc(func(ctx context.Context, url string) (stream.Source, error) {
		return frameSource{}, nil
	})
	streamer := stream.NewStreamer(nil, stream.NewEncoder(stream.DefaultJPEGQuality),
		stream.StreamerConfig{IdleInterval: 5 * time.Millisecond}, nil)
	streams := service.NewStreamService(log, opener, streamer, nil, service.StreamOptions{
		Reconnect:    stream.ReconnectPolicy{MaxAttempts: 1, Delay: time.Millisecond},
		PollInterval: time.Millisecond,
	})
	t.Cleanup(streams.StopAll)

	router := gin.New()
	router.Use(mw.RequestID(), sess.Middleware())

	usrsess := NewUserSessionsHandler(log, authsvc)
	router.POST("/api/login", usrsess.Login)
	router.POST("/api/logout", usrsess.Logout)

	authed := router.Group("/api", mw.Authentication(authsvc), mw.ValidateSessionCSRF(authsvc))
	authed.GET("/me", Me(authsvc))
	authed.GET("/csrf", IssueSessionCSRF)

	cams := NewCamerasHandler(log, authsvc, dir)
	strm := NewStreamsHandler(log, authsvc, dir, streams)
	requireValidID := mw.RequireValidID()
	authed.GET("/cameras", cams.GetCameraList)
	authed.GET("/cameras/:id", requireValidID, cams.GetCamera)
	authed.GET("/zones/:id/cameras", requireValidID, cams.GetZoneCameras)
	authed.GET("/cameras/:id/stream", requireValidID, mw.LimitConcurrentRequests(4), strm.Stream)
	authed.GET("/cameras/:id/snapshot", requireValidID, strm.Snapshot)

	admins := authed.Group("", mw.Authorization(authsvc, principal.Admin))
	admins.GET("/streams", strm.GetActiveStreams)
	admins.POST("/url/parse", (&URLParse{}).Parse)

	return &testServer{router: router, streams: streams}
}

func seed(t *testing.T, r *repo.Repository) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	hash, err := service.HashPassword("correct horse")
	must(err)

	must(r.Users.Upsert(ctx, &repo.User{ID: "root@fw.test", Role: principal.Admin, Active: true, PasswordHash: hash}))
	must(r.Users.Upsert(ctx, &repo.User{ID: "sup@fw.test", Role: principal.Supervisor, Active: true, PasswordHash: hash}))
	must(r.Users.Upsert(ctx, &repo.User{ID: "new@fw.test", Role: principal.Agent, Active: false, PasswordHash: hash}))
	must(r.Principals.Upsert(ctx, adminToken, &principal.Principal{ID: "root@fw.test", Role: principal.Admin}))
	must(r.Principals.Upsert(ctx, supToken, &principal.Principal{ID: "sup@fw.test", Role: principal.Supervisor}))
	must(r.Principals.Upsert(ctx, agentToken, &principal.Principal{ID: "agent@fw.test", Role: principal.Agent}))

	must(r.Topology.UpsertProject(ctx, &camera.Project{ID: 1, Name: "north", SupervisorID: "sup@fw.test", Status: camera.ProjectActive}))
	must(r.Topology.UpsertProject(ctx, &camera.Project{ID: 2, Name: "south", SupervisorID: "other@fw.test", Status: camera.ProjectActive}))
	must(r.Topology.UpsertZone(ctx, &camera.Zone{ID: 10, Name: "gate", ProjectID: 1}))
	must(r.Topology.UpsertZone(ctx, &camera.Zone{ID: 20, Name: "yard", ProjectID: 2}))
	must(r.Topology.AssignAgents(ctx, 2, "agent@fw.test"))

	must(r.Cameras.Upsert(ctx, &camera.Camera{ID: 1, Name: "gate-east", ZoneID: 10,
		IsFullRTSPURL: true, CustomURL: ptr("rtsp://10.0.0.1/live")}))
	must(r.Cameras.Upsert(ctx, &camera.Camera{ID: 2, Name: "yard-west", ZoneID: 20,
		Address: ptr("10.0.0.2"), Port: ptr(554), Path: ptr("stream1"),
		Username: ptr("viewer"), Password: ptr("s3cret")}))
	must(r.Cameras.Upsert(ctx, &camera.Camera{ID: 3, Name: "gate-broken", ZoneID: 10}))
}

type reqOpt func(*http.Request)

func bearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func cookies(cs []*http.Cookie) reqOpt {
	return func(r *http.Request) {
		for _, c := range cs {
			r.AddCookie(c)
		}
	}
}

func header(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (s *testServer) do(method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	return s.doCtx(context.Background(), method, path, body, opts...)
}

func (s *testServer) doCtx(ctx context.Context, method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body)).WithContext(ctx)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil).WithContext(ctx)
	}
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}
