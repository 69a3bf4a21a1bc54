package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// StreamerConfig tunes the emit loop.
type StreamerConfig struct {
	IdleInterval      time.Duration // wait before the first frame; caps the wait for a newer one
	AnnotateTimeout   time.Duration // per-frame annotator deadline
	MaxEncodeFailures int           // consecutive encode failures that end the stream; 0 never ends it
}

func DefaultStreamerConfig() StreamerConfig {
	return StreamerConfig{
		IdleInterval:      100 * time.Millisecond,
		AnnotateTimeout:   500 * time.Millisecond,
		MaxEncodeFailures: 50,
	}
}

// Streamer binds a session to one consumer. The annotator and encoder are
// shared by every stream.
type Streamer struct {
	cfg     StreamerConfig
	guard   *guard
	encoder *Encoder
	metrics *Metrics
}

func NewStreamer(annotator Annotator, encoder *Encoder, cfg StreamerConfig, m *Metrics) *Streamer {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 100 * time.Millisecond
	}
	if encoder == nil {
		encoder = NewEncoder(DefaultJPEGQuality)
	}
	return &Streamer{
		cfg:     cfg,
		guard:   &guard{next: annotator, timeout: cfg.AnnotateTimeout, metrics: m},
		encoder: encoder,
		metrics: m,
	}
}

type flusher interface{ Flush() }

// Run starts sess if needed and writes one chunk per new frame to w until ctx
// is done, the session stops, a write fails or encoding keeps failing.
// The session is stopped before Run returns. A cancelled ctx is a normal
// disconnect and yields nil.
func (st *Streamer) Run(ctx context.Context, sess *Session, w io.Writer) error {
	log := sess.Logger()
	defer sess.Stop()

	if err := sess.Start(); err != nil && !errors.Is(err, ErrSessionStarted) {
		return err
	}

	fl, _ := w.(flusher)
	slot := newInflight()
	var (
		lastSeq  uint64
		failures int
		sent     uint64
	)

	for {
		if ctx.Err() != nil {
			log.Info("consumer disconnected",
				zap.String("kind", KindConsumerDisconnected),
				zap.Uint64("chunks", sent))
			return nil
		}
		if !sess.Running() {
			log.Info("stream ended", zap.Uint64("chunks", sent), zap.Error(sess.Err()))
			return sess.Err()
		}

		f, updated := sess.frameSignal()
		if f == nil {
			sleepCtx(ctx, st.cfg.IdleInterval)
			continue
		}
		if f.Seq <= lastSeq {
			// Already sent; wake on the next publish. The idle interval
			// bounds the wait so liveness is still rechecked.
			waitFrame(ctx, sess, updated, st.cfg.IdleInterval)
			continue
		}
		lastSeq = f.Seq

		out := st.guard.apply(ctx, log, sess.CameraID(), f, slot)
		chunk, err := st.encoder.Chunk(out)
		if err != nil {
			failures++
			st.metrics.encodeFailed(sess.CameraID())
			log.Warn("frame encoding failed, skipping",
				zap.String("kind", KindEncodingFailure),
				zap.Uint64("seq", f.Seq),
				zap.Int("consecutive", failures),
				zap.Error(err))
			if st.cfg.MaxEncodeFailures > 0 && failures >= st.cfg.MaxEncodeFailures {
				return fmt.Errorf("%d consecutive failures: %w", failures, ErrEncodingFailure)
			}
			continue
		}
		failures = 0

		if _, err := w.Write(chunk); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Info("write failed, closing stream",
				zap.String("kind", KindConsumerDisconnected),
				zap.Error(err))
			return fmt.Errorf("write chunk: %w", err)
		}
		if fl != nil {
			fl.Flush()
		}
		sent++
		st.metrics.chunkSent(sess.CameraID())
	}
}

func waitFrame(ctx context.Context, sess *Session, updated <-chan struct{}, limit time.Duration) {
	t := time.NewTimer(limit)
	defer t.Stop()
	select {
	case <-updated:
	case <-sess.Done():
	case <-ctx.Done():
	case <-t.C:
	}
}

// Snapshot starts sess, waits for its first frame and returns it annotated
// and JPEG-encoded. The session is stopped before Snapshot returns.
func (st *Streamer) Snapshot(ctx context.Context, sess *Session) ([]byte, error) {
	log := sess.Logger()
	defer sess.Stop()

	if err := sess.Start(); err != nil && !errors.Is(err, ErrSessionStarted) {
		return nil, err
	}
	poll := st.cfg.IdleInterval / 4
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	for {
		if f := sess.CurrentFrame(); f != nil {
			return st.encoder.Encode(st.guard.apply(ctx, log, sess.CameraID(), f, newInflight()))
		}
		if !sess.Running() {
			if err := sess.Err(); err != nil {
				return nil, err
			}
			return nil, ErrSourceUnreachable
		}
		if !sleepCtx(ctx, poll) {
			return nil, ctx.Err()
		}
	}
}
