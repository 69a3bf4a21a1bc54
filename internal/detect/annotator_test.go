package detect

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/stream"
)

func grayFrame(w, h int) *stream.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 60
	}
	return &stream.Frame{Seq: 3, Timestamp: time.Now(), Image: img}
}

func detectServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("content-type = %q", ct)
		}
		if r.URL.Query().Get("conf") != "0.40" {
			t.Errorf("conf = %q", r.URL.Query().Get("conf"))
		}
		b, _ := io.ReadAll(r.Body)
		if len(b) < 2 || b[0] != 0xff || b[1] != 0xd8 {
			t.Error("body is not a JPEG")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{BaseURL: url, Timeout: time.Second, MinConfidence: 0.4})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClientDetect(t *testing.T) {
	srv := detectServer(t, http.StatusOK, detectResponse{
		Model: "fire-yolo",
		Detections: []Detection{
			{Label: "fire", Confidence: 0.91, Box: [4]float64{4, 4, 20, 20}},
		},
	})
	dets, err := newTestClient(t, srv.URL).Detect(context.Background(), mustJPEG(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 1 || dets[0].Label != "fire" {
		t.Errorf("detections = %+v", dets)
	}
}

func TestClientDetectError(t *testing.T) {
	srv := detectServer(t, http.StatusServiceUnavailable, errorResponse{Message: "model loading"})
	_, err := newTestClient(t, srv.URL).Detect(context.Background(), mustJPEG(t))
	if err == nil || !strings.Contains(err.Error(), "model loading") {
		t.Errorf("err = %v", err)
	}
}

func TestAnnotatorDrawsBoxes(t *testing.T) {
	srv := detectServer(t, http.StatusOK, detectResponse{Detections: []Detection{
		{Label: "fire", Confidence: 0.9, Box: [4]float64{10, 20, 50, 60}},
		{Label: "person", Confidence: 0.95, Box: [4]float64{0, 0, 5, 5}},
		{Label: "smoke", Confidence: 0.1, Box: [4]float64{0, 0, 5, 5}},
	}})
	a := NewAnnotator(zap.NewNop(), newTestClient(t, srv.URL), AnnotatorConfig{
		MinConfidence: 0.4,
		Labels:        []string{"fire", "smoke"},
		UploadQuality: 70,
	})

	in := grayFrame(80, 80)
	out, err := a.Annotate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if out == in || out.Seq != in.Seq {
		t.Fatal("expected a new frame with the same sequence")
	}

	img := out.Image.(*image.RGBA)
	if got := img.RGBAAt(30, 59); got != colorFire {
		t.Errorf("bottom edge pixel = %v, want fire color", got)
	}
	if got := img.RGBAAt(2, 2); got == colorDefault {
		t.Error("filtered label was drawn")
	}
	if in.Image.(*image.RGBA).RGBAAt(30, 59) != (color.RGBA{60, 60, 60, 60}) {
		t.Error("input frame was mutated")
	}
}

func TestAnnotatorNoDetectionsReturnsInput(t *testing.T) {
	srv := detectServer(t, http.StatusOK, detectResponse{})
	a := NewAnnotator(zap.NewNop(), newTestClient(t, srv.URL), AnnotatorConfig{MinConfidence: 0.4})
	in := grayFrame(32, 32)
	out, err := a.Annotate(context.Background(), in)
	if err != nil || out != in {
		t.Errorf("Annotate = %v, %v; want input frame", out, err)
	}
}

func TestAnnotatorNormalizedBoxes(t *testing.T) {
	d := detectorFunc(func(context.Context, []byte) ([]Detection, error) {
		return []Detection{{Label: "fire", Confidence: 1, Box: [4]float64{0.25, 0.25, 0.75, 0.75}}}, nil
	})
	a := NewAnnotator(zap.NewNop(), d, AnnotatorConfig{Normalized: true})
	out, err := a.Annotate(context.Background(), grayFrame(40, 40))
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Image.(*image.RGBA).RGBAAt(20, 29); got != colorFire {
		t.Errorf("pixel = %v, want fire color at scaled bottom edge", got)
	}
}

func TestAnnotatorPropagatesDetectorError(t *testing.T) {
	d := detectorFunc(func(context.Context, []byte) ([]Detection, error) {
		return nil, errors.New("gpu busy")
	})
	a := NewAnnotator(zap.NewNop(), d, AnnotatorConfig{})
	if _, err := a.Annotate(context.Background(), grayFrame(8, 8)); err == nil {
		t.Error("expected error")
	}
}

type detectorFunc func(context.Context, []byte) ([]Detection, error)

func (f detectorFunc) Detect(ctx context.Context, b []byte) ([]Detection, error) { return f(ctx, b) }

func mustJPEG(t *testing.T) []byte {
	t.Helper()
	b, err := stream.NewEncoder(80).Encode(grayFrame(16, 16))
	if err != nil {
		t.Fatal(err)
	}
	return b
}
