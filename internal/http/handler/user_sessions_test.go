package handler

import (
	"net/http"
	"testing"
)

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"email":"sup@fw.test","password":"correct horse"}`, http.StatusOK},
		{"wrong password", `{"email":"sup@fw.test","password":"nope nope"}`, http.StatusUnauthorized},
		{"unknown", `{"email":"ghost@fw.test","password":"correct horse"}`, http.StatusUnauthorized},
		{"inactive", `{"email":"new@fw.test","password":"correct horse"}`, http.StatusForbidden},
		{"unknown field", `{"username":"sup@fw.test"}`, http.StatusBadRequest},
		{"not json", `email=sup`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/login", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(http.MethodGet, "/api/me", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous /me = %d", w.Code)
	}

	w := s.do(http.MethodPost, "/api/login", `{"email":"root@fw.test","password":"correct horse"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d", w.Code)
	}
	jar := w.Result().Cookies()

	w = s.do(http.MethodGet, "/api/me", "", cookies(jar))
	me := decode[map[string]string](t, w)
	if me["id"] != "root@fw.test" || me["role"] != "admin" || me["credential_type"] != "session" {
		t.Fatalf("/me = %v", me)
	}

	// mutating request over a session needs the csrf token
	body := `{"url":"rtsp://10.0.0.9:8554/cam"}`
	if w := s.do(http.MethodPost, "/api/url/parse", body, cookies(jar)); w.Code != http.StatusBadRequest {
		t.Fatalf("POST without csrf = %d", w.Code)
	}

	w = s.do(http.MethodGet, "/api/csrf", "", cookies(jar))
	if w.Code != http.StatusOK || w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("/csrf = %d %v", w.Code, w.Header())
	}
	token := decode[map[string]string](t, w)["csrf"]
	if len(token) != 64 {
		t.Fatalf("csrf token %q", token)
	}
	if c := w.Result().Cookies(); len(c) > 0 {
		jar = c
	}

	w = s.do(http.MethodPost, "/api/url/parse", body, cookies(jar), header("X-CSRF-Token", token))
	if w.Code != http.StatusOK {
		t.Fatalf("POST with csrf = %d %s", w.Code, w.Body.String())
	}
	u := decode[map[string]string](t, w)
	if u["host"] != "10.0.0.9" || u["port"] != "8554" {
		t.Errorf("parsed = %v", u)
	}

	w = s.do(http.MethodPost, "/api/logout", "", cookies(jar))
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/me", "", cookies(w.Result().Cookies())); w.Code != http.StatusUnauthorized {
		t.Errorf("/me after logout = %d", w.Code)
	}
}

func TestBearerSkipsCSRF(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/url/parse", `{"url":"ftp://10.0.0.9/cam"}`, bearer(adminToken))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad scheme = %d", w.Code)
	}
	w = s.do(http.MethodPost, "/api/url/parse", `{"url":"rtsp://10.0.0.9/cam"}`, bearer(supToken))
	if w.Code != http.StatusForbidden {
		t.Errorf("supervisor on admin route = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/me", "", bearer("forged")); w.Code != http.StatusUnauthorized {
		t.Errorf("forged token = %d", w.Code)
	}
}
