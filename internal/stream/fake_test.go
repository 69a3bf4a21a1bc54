package stream

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"
)

// fakeCamera scripts source behavior. Each entry of plan is the outcome of one
// Read across all connections; true yields a frame, false a failure. When the
// plan runs out, reads fail unless block or endless is set.
type fakeCamera struct {
	mu       sync.Mutex
	plan     []bool
	failOpen bool
	block    bool // block until ctx done once the plan is spent
	endless  bool // produce frames forever once the plan is spent
	interval time.Duration // per-read delay, a camera's frame period
	img      func(n int) image.Image

	opens  int
	closes int
	reads  int
}

func (c *fakeCamera) Open(ctx context.Context, url string) (Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.failOpen {
		return nil, fmt.Errorf("%w: dial %s: connection refused", ErrSourceUnreachable, url)
	}
	return &fakeSource{cam: c}, nil
}

func (c *fakeCamera) counts() (opens, closes, reads int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens, c.closes, c.reads
}

type fakeSource struct {
	cam    *fakeCamera
	closed bool
}

func (s *fakeSource) Read(ctx context.Context) (*Frame, error) {
	c := s.cam
	if c.interval > 0 && !sleepCtx(ctx, c.interval) {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, ctx.Err())
	}
	c.mu.Lock()
	c.reads++
	n := c.reads
	var ok, spent bool
	if len(c.plan) > 0 {
		ok, c.plan = c.plan[0], c.plan[1:]
	} else {
		spent = true
	}
	block, endless := c.block, c.endless
	c.mu.Unlock()

	switch {
	case spent && block:
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, ctx.Err())
	case spent && endless:
		ok = true
	case spent:
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("%w: connection reset", ErrSourceUnreachable)
	}
	return &Frame{Timestamp: time.Now(), Image: c.image(n)}, nil
}

func (s *fakeSource) Close() error {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.cam.closes++
	}
	return nil
}

func (c *fakeCamera) image(n int) image.Image {
	if c.img != nil {
		return c.img(n)
	}
	return solid(16, 8, color.RGBA{R: uint8(n * 10), G: 40, B: 200, A: 255})
}

func solid(w, h int, col color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = col.R, col.G, col.B, col.A
	}
	return img
}

// oversized fails JPEG encoding without allocating pixels.
type oversized struct{}

func (oversized) ColorModel() color.Model { return color.RGBAModel }
func (oversized) Bounds() image.Rectangle { return image.Rect(0, 0, 1<<16+1, 1) }
func (oversized) At(x, y int) color.Color { return color.Black }

func fastConfig(maxAttempts int) SessionConfig {
	return SessionConfig{
		CameraID:     42,
		Name:         "north-gate",
		URL:          "rtsp://10.0.0.42:554/stream1",
		Reconnect:    ReconnectPolicy{MaxAttempts: maxAttempts, Delay: time.Millisecond},
		PollInterval: time.Millisecond,
	}
}

func waitDone(t interface{ Fatal(...any) }, s *Session, d time.Duration) {
	select {
	case <-s.Done():
	case <-time.After(d):
		t.Fatal("session did not stop in time")
	}
}
