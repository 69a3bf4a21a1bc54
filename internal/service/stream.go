package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
	"github.com/edirooss/firewatch-server/internal/stream"
)

var (
	// ErrShuttingDown is returned once StopAll has run.
	ErrShuttingDown = errors.New("server is shutting down")
	// ErrSnapshotTimeout is returned when no frame arrived in time.
	ErrSnapshotTimeout = errors.New("snapshot timed out")
)

type StreamOptions struct {
	Reconnect       stream.ReconnectPolicy
	PollInterval    time.Duration
	SnapshotTimeout time.Duration // default 10s
}

// StreamService opens one camera session per viewer and keeps a registry of
// live sessions so they can be listed and stopped on shutdown.
type StreamService struct {
	log      *zap.Logger
	opener   stream.Opener
	streamer *stream.Streamer
	metrics  *stream.Metrics
	opts     StreamOptions

	mu       sync.Mutex
	sessions map[string]*stream.Session
	closed   bool
}

func NewStreamService(log *zap.Logger, opener stream.Opener, streamer *stream.Streamer, m *stream.Metrics, opts StreamOptions) *StreamService {
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = 10 * time.Second
	}
	return &StreamService{
		log:      log.Named("stream"),
		opener:   opener,
		streamer: streamer,
		metrics:  m,
		opts:     opts,
		sessions: make(map[string]*stream.Session),
	}
}

// Serve streams ep to w until ctx is done or the session ends.
func (s *StreamService) Serve(ctx context.Context, ep camera.Endpoint, w io.Writer) error {
	sess, err := s.register(ep)
	if err != nil {
		return err
	}
	defer s.unregister(sess)

	sess.Logger().Info("stream opened", zap.String("url", ep.Redacted()))
	return s.streamer.Run(ctx, sess, w)
}

// Snapshot returns one annotated JPEG of ep.
func (s *StreamService) Snapshot(ctx context.Context, ep camera.Endpoint) ([]byte, error) {
	sess, err := s.register(ep)
	if err != nil {
		return nil, err
	}
	defer s.unregister(sess)

	ctx, cancel := context.WithTimeout(ctx, s.opts.SnapshotTimeout)
	defer cancel()

	jpg, err := s.streamer.Snapshot(ctx, sess)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrSnapshotTimeout
	}
	return jpg, err
}

// Active lists live sessions, oldest first.
func (s *StreamService) Active() []stream.SessionStats {
	s.mu.Lock()
	out := make([]stream.SessionStats, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Stats())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// StopAll stops every live session and refuses new ones. Safe to call twice.
func (s *StreamService) StopAll() {
	s.mu.Lock()
	s.closed = true
	live := make([]*stream.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	if len(live) > 0 {
		s.log.Info("stopping live sessions", zap.Int("count", len(live)))
	}
	var wg sync.WaitGroup
	for _, sess := range live {
		sess := sess
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Stop()
		}()
	}
	wg.Wait()
}

func (s *StreamService) register(ep camera.Endpoint) (*stream.Session, error) {
	sess := stream.NewSession(s.log, s.opener, stream.SessionConfig{
		CameraID:     ep.CameraID,
		Name:         ep.Name,
		URL:          ep.URL,
		Reconnect:    s.opts.Reconnect,
		PollInterval: s.opts.PollInterval,
	}, s.metrics)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShuttingDown
	}
	s.sessions[sess.ID()] = sess
	return sess, nil
}

func (s *StreamService) unregister(sess *stream.Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
}
