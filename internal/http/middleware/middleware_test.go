package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"missing", "", false},
		{"client supplied", "abc-123", true},
		{"too long", strings.Repeat("x", 65), false},
		{"control chars", "abc\x01", false},
		{"spaces", "a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := serve(r, req)
			got := w.Header().Get("X-Request-ID")
			if got != w.Body.String() {
				t.Errorf("header %q != context %q", got, w.Body.String())
			}
			if tt.keep && got != tt.header {
				t.Errorf("id = %q, want %q", got, tt.header)
			}
			if !tt.keep && (got == tt.header || len(got) != 36) {
				t.Errorf("id = %q, want a fresh uuid", got)
			}
		})
	}
}

func TestRequireValidID(t *testing.T) {
	r := gin.New()
	r.GET("/things/:id", RequireValidID(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": IDParam(c)})
	})

	tests := []struct {
		path string
		want int
		body string
	}{
		{"/things/7", http.StatusOK, `{"id":7}`},
		{"/things/0", http.StatusBadRequest, ""},
		{"/things/-3", http.StatusBadRequest, ""},
		{"/things/x1", http.StatusBadRequest, ""},
		{"/things/99999999999999999999", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		w := serve(r, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, w.Code, tt.want)
		}
		if tt.body != "" && w.Body.String() != tt.body {
			t.Errorf("%s: body = %s", tt.path, w.Body.String())
		}
	}
}

func TestLimitConcurrentRequests(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)

	r := gin.New()
	r.GET("/slow", LimitConcurrentRequests(2), func(c *gin.Context) {
		entered <- struct{}{}
		<-release
		c.Status(http.StatusOK)
	})

	var wg sync.WaitGroup
	codes := make(chan int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil)).Code
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("requests did not reach the handler")
		}
	}

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil)); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", w.Code)
	}

	close(release)
	wg.Wait()
	close(codes)
	for c := range codes {
		if c != http.StatusOK {
			t.Errorf("admitted request = %d", c)
		}
	}

	free := gin.New()
	free.GET("/", LimitConcurrentRequests(0), func(c *gin.Context) { c.Status(http.StatusOK) })
	if w := serve(free, httptest.NewRequest(http.MethodGet, "/", nil)); w.Code != http.StatusOK {
		t.Errorf("unlimited = %d", w.Code)
	}
}

func TestAccessLogLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(RequestID(), AccessLog(zap.New(core), nil))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) {
		c.Error(http.ErrHandlerTimeout)
		c.Status(http.StatusInternalServerError)
	})

	for _, p := range []string{"/ok", "/missing", "/boom"} {
		serve(r, httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}
	want := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Errorf("entry %d level = %v, want %v", i, e.Level, want[i])
		}
		if e.ContextMap()["request_id"] == "" {
			t.Errorf("entry %d has no request_id", i)
		}
	}
	if entries[2].ContextMap()["error"] == nil {
		t.Error("error not attached to 500 entry")
	}
}

func TestAccessLogStreamFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(AccessLog(zap.New(core), nil))
	r.GET("/api/cameras/:id/stream", RequireValidID(), func(c *gin.Context) {
		c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		c.Status(http.StatusOK)
	})
	r.GET("/api/zones/:id/cameras", RequireValidID(), func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/api/cameras/7/stream", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/api/zones/3/cameras", nil))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Message != "stream" || entries[0].ContextMap()["camera_id"] != int64(7) {
		t.Errorf("stream entry = %q %v", entries[0].Message, entries[0].ContextMap())
	}
	if entries[1].Message != "request" || entries[1].ContextMap()["zone_id"] != int64(3) {
		t.Errorf("zone entry = %q %v", entries[1].Message, entries[1].ContextMap())
	}
}
