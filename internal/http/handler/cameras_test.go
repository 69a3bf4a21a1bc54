package handler

import (
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/edirooss/firewatch-server/internal/http/dto"
)

func TestGetCameraList(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		token string
		want  []int64
	}{
		{"admin", adminToken, []int64{1, 2, 3}},
		{"supervisor", supToken, []int64{1, 3}},
		{"agent", agentToken, []int64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodGet, "/api/cameras", "", bearer(tt.token))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			views := decode[[]dto.CameraView](t, w)
			if len(views) != len(tt.want) {
				t.Fatalf("got %d cameras, want %v", len(views), tt.want)
			}
			for i, v := range views {
				if v.ID != tt.want[i] {
					t.Errorf("camera[%d] = %d, want %d", i, v.ID, tt.want[i])
				}
			}
			if got := w.Header().Get("X-Total-Count"); got != strconv.Itoa(len(tt.want)) {
				t.Errorf("X-Total-Count = %q", got)
			}
			if strings.Contains(w.Body.String(), "s3cret") {
				t.Error("response leaks camera password")
			}
		})
	}
}

func TestGetCamera(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"visible", "/api/cameras/2", agentToken, http.StatusOK},
		{"other project", "/api/cameras/1", agentToken, http.StatusForbidden},
		{"missing", "/api/cameras/99", adminToken, http.StatusNotFound},
		{"bad id", "/api/cameras/abc", adminToken, http.StatusBadRequest},
		{"zero id", "/api/cameras/0", adminToken, http.StatusBadRequest},
		{"zone visible", "/api/zones/10/cameras", supToken, http.StatusOK},
		{"zone forbidden", "/api/zones/20/cameras", supToken, http.StatusForbidden},
		{"zone missing", "/api/zones/77/cameras", adminToken, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodGet, tt.path, "", bearer(tt.token))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := s.do(http.MethodGet, "/api/cameras/2", "", bearer(agentToken))
	v := decode[dto.CameraView](t, w)
	if !v.HasCredentials || v.StreamURL != "/api/cameras/2/stream" || v.Source != "rtsp://10.0.0.2:554/stream1" {
		t.Errorf("view = %+v", v)
	}
}
