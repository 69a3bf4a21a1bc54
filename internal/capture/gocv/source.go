//go:build gocv

// Package gocv decodes camera sources in-process with OpenCV.
package gocv

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/edirooss/firewatch-server/internal/stream"
	"github.com/edirooss/firewatch-server/pkg/avurl"
)

type Config struct {
	ReadTimeout time.Duration
}

type Opener struct {
	log *zap.Logger
	cfg Config
}

func NewOpener(log *zap.Logger, cfg Config) *Opener {
	return &Opener{log: log.Named("capture.gocv"), cfg: cfg}
}

func (o *Opener) Open(ctx context.Context, url string) (stream.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", stream.ErrSourceUnreachable, err)
	}
	log := o.log.With(zap.String("url", avurl.Redact(url)))

	vc, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stream.ErrSourceUnreachable, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: capture not opened", stream.ErrSourceUnreachable)
	}
	// keep only the newest decoded frame
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	log.Debug("capture opened")

	return &Source{log: log, cfg: o.cfg, vc: vc}, nil
}

// capture is the part of gocv.VideoCapture a Source uses.
type capture interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Source wraps a VideoCapture. OpenCV captures are not safe for concurrent
// use: at most one native read runs at a time, and when Close lands during
// one the reader releases the capture after the read returns.
type Source struct {
	log *zap.Logger
	cfg Config

	mu      sync.Mutex
	vc      capture
	reading bool
	closed  bool
	freed   bool
}

type readResult struct {
	img image.Image
	err error
}

func (s *Source) Read(ctx context.Context) (*stream.Frame, error) {
	res := make(chan readResult, 1)
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: capture closed", stream.ErrSourceUnreachable)
	case s.reading:
		// a previous read timed out and is still inside OpenCV
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: previous read still pending", stream.ErrSourceUnreachable)
	}
	s.reading = true
	s.mu.Unlock()

	go func() {
		defer s.readDone()

		mat := gocv.NewMat()
		defer mat.Close()
		if ok := s.vc.Read(&mat); !ok || mat.Empty() {
			res <- readResult{err: fmt.Errorf("%w: no frame decoded", stream.ErrEndOfStream)}
			return
		}
		img, err := mat.ToImage()
		if err != nil {
			res <- readResult{err: fmt.Errorf("%w: convert frame: %w", stream.ErrSourceUnreachable, err)}
			return
		}
		res <- readResult{img: img}
	}()

	var timeout <-chan time.Time
	if s.cfg.ReadTimeout > 0 {
		t := time.NewTimer(s.cfg.ReadTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-res:
		if r.err != nil {
			return nil, r.err
		}
		return &stream.Frame{Timestamp: time.Now(), Image: r.img}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", stream.ErrSourceUnreachable, ctx.Err())
	case <-timeout:
		return nil, fmt.Errorf("%w after %s", stream.ErrReadTimeout, s.cfg.ReadTimeout)
	}
}

// readDone ends a native read and frees the capture if Close came first.
func (s *Source) readDone() {
	s.mu.Lock()
	s.reading = false
	free := s.closed && !s.freed
	s.freed = s.freed || free
	s.mu.Unlock()
	if free {
		if err := s.vc.Close(); err != nil {
			s.log.Debug("capture close after read", zap.Error(err))
		}
	}
}

// Close never waits for a native read. If one is in flight the reader
// releases the capture when it returns.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.reading {
		s.mu.Unlock()
		return nil
	}
	s.freed = true
	s.mu.Unlock()
	return s.vc.Close()
}
