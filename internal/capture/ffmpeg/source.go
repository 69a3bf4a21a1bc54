package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/stream"
	"github.com/edirooss/firewatch-server/pkg/avurl"
)

const stderrLines = 64

// Opener starts one ffmpeg decoder per Open.
type Opener struct {
	log *zap.Logger
	cfg Config
}

func NewOpener(log *zap.Logger, cfg Config) (*Opener, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}
	return &Opener{log: log.Named("capture.ffmpeg"), cfg: cfg}, nil
}

func (o *Opener) Open(ctx context.Context, url string) (stream.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", stream.ErrSourceUnreachable, err)
	}

	cmd := command(o.cfg, url)
	log := o.log.With(zap.String("url", avurl.Redact(url)))
	log.Debug("opening source", zap.String("cmd", cmd.String()))

	p, err := startProcess(log, newLogBuffer(stderrLines), cmd.argv(), o.cfg.StopGrace)
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %w", stream.ErrSourceUnreachable, o.cfg.Binary, err)
	}
	return &Source{log: log, cfg: o.cfg, p: p}, nil
}

// Source reads fixed-size RGBA frames from a running decoder.
type Source struct {
	log *zap.Logger
	cfg Config
	p   *process

	frames    int // successful reads
	closeOnce sync.Once
}

type readResult struct {
	img *image.RGBA
	err error
}

func (s *Source) Read(ctx context.Context) (*stream.Frame, error) {
	res := make(chan readResult, 1)
	go func() {
		img, err := readFrame(s.p.stdout, s.cfg.Width, s.cfg.Height)
		res <- readResult{img: img, err: err}
	}()

	var timeout <-chan time.Time
	if s.cfg.ReadTimeout > 0 {
		t := time.NewTimer(s.cfg.ReadTimeout)
		defer t.Stop()
		timeout = t.C
	}

	// An abandoned read finishes once Close kills the decoder.
	select {
	case r := <-res:
		if r.err != nil {
			return nil, s.classify(r.err)
		}
		s.frames++
		return &stream.Frame{Timestamp: time.Now(), Image: r.img}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", stream.ErrSourceUnreachable, ctx.Err())
	case <-timeout:
		return nil, fmt.Errorf("%w after %s", stream.ErrReadTimeout, s.cfg.ReadTimeout)
	}
}

// classify maps a stdout failure to a stream error carrying the decoder's
// last stderr lines.
func (s *Source) classify(err error) error {
	select {
	case <-s.p.Done():
	case <-time.After(200 * time.Millisecond):
	}
	detail := strings.Join(s.p.logBuf.Tail(3), "; ")
	if detail == "" {
		detail = "no decoder output"
	}

	eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
	switch {
	case eof && s.frames > 0:
		return fmt.Errorf("%w: %s", stream.ErrEndOfStream, detail)
	case eof:
		return fmt.Errorf("%w: decoder exited: %s", stream.ErrSourceUnreachable, detail)
	default:
		return fmt.Errorf("%w: %w: %s", stream.ErrSourceUnreachable, err, detail)
	}
}

// Close stops the decoder and releases stdout.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.p.Close()
		err = s.p.stdout.Close()
	})
	return err
}

// readFrame reads exactly one w x h RGBA frame.
func readFrame(r io.Reader, w, h int) (*image.RGBA, error) {
	buf := make([]byte, w*h*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return &image.RGBA{Pix: buf, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}, nil
}
