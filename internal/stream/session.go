package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionConfig identifies the camera and tunes the acquisition loop.
type SessionConfig struct {
	CameraID     int64
	Name         string // display name, logging only
	URL          string
	Reconnect    ReconnectPolicy
	PollInterval time.Duration
}

// Session owns one source connection and keeps the most recent frame.
// The acquisition goroutine is the only writer; CurrentFrame never blocks on I/O.
type Session struct {
	log      *zap.Logger
	id       string
	cameraID int64
	name     string
	url      string
	opener   Opener
	policy   ReconnectPolicy
	poll     time.Duration
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	lifeMu  sync.Mutex // guards started against Stop
	started bool

	frameMu sync.RWMutex
	latest  *Frame
	updated chan struct{} // closed and replaced on every publish

	// loop-owned
	src      Source
	seq      uint64
	attempts int

	running      atomic.Bool
	exhausted    atomic.Bool
	state        atomic.Int32
	attemptsSeen atomic.Int64
	framesRead   atomic.Uint64
	reconnects   atomic.Uint64
	lastFrameAt  atomic.Int64
	startedAt    time.Time
}

// NewSession builds an idle session. Call Start to begin acquisition.
func NewSession(log *zap.Logger, opener Opener, cfg SessionConfig, m *Metrics) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.Reconnect.MaxAttempts < 0 {
		cfg.Reconnect.MaxAttempts = 0
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		log: log.Named("session").With(
			zap.String("camera", cfg.Name),
			zap.Int64("camera_id", cfg.CameraID),
			zap.String("session_id", id)),
		id:       id,
		cameraID: cfg.CameraID,
		name:     cfg.Name,
		url:      cfg.URL,
		opener:   opener,
		policy:   cfg.Reconnect,
		poll:     cfg.PollInterval,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		updated:  make(chan struct{}),
	}
	s.state.Store(int32(StateReconnecting))
	return s
}

func (s *Session) ID() string          { return s.id }
func (s *Session) CameraID() int64     { return s.cameraID }
func (s *Session) Name() string        { return s.name }
func (s *Session) Logger() *zap.Logger { return s.log }

// Start spawns the acquisition goroutine.
func (s *Session) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.started {
		return ErrSessionStarted
	}
	s.started = true
	s.startedAt = time.Now()
	if s.ctx.Err() == nil {
		s.running.Store(true)
	}
	go s.run()
	return nil
}

// Stop asks the acquisition goroutine to exit and waits until it has closed
// the source. Safe to call more than once and before Start.
func (s *Session) Stop() {
	s.lifeMu.Lock()
	started := s.started
	s.running.Store(false)
	s.cancel()
	s.lifeMu.Unlock()

	if started {
		<-s.done
	}
}

// CurrentFrame returns the latest frame or nil before the first one.
func (s *Session) CurrentFrame() *Frame {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.latest
}

// frameSignal returns the latest frame and a channel closed by the next
// publish. Both are read under one lock so no publish falls between them.
func (s *Session) frameSignal() (*Frame, <-chan struct{}) {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.latest, s.updated
}

// Running reports liveness. Once false it stays false.
func (s *Session) Running() bool { return s.running.Load() }

// Done is closed when the acquisition goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns ErrStreamExhausted once the reconnect budget ran out.
func (s *Session) Err() error {
	if s.exhausted.Load() {
		return ErrStreamExhausted
	}
	return nil
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// SessionStats is a point-in-time view of a session.
type SessionStats struct {
	ID          string    `json:"id"`
	CameraID    int64     `json:"camera_id"`
	Camera      string    `json:"camera"`
	State       State     `json:"state"`
	Running     bool      `json:"running"`
	FramesRead  uint64    `json:"frames_read"`
	Reconnects  uint64    `json:"reconnects"`
	Attempt     int64     `json:"attempt"`
	StartedAt   time.Time `json:"started_at"`
	LastFrameAt time.Time `json:"last_frame_at,omitzero"`
}

func (s *Session) Stats() SessionStats {
	st := SessionStats{
		ID:         s.id,
		CameraID:   s.cameraID,
		Camera:     s.name,
		State:      s.State(),
		Running:    s.Running(),
		FramesRead: s.framesRead.Load(),
		Reconnects: s.reconnects.Load(),
		Attempt:    s.attemptsSeen.Load(),
	}
	s.lifeMu.Lock()
	st.StartedAt = s.startedAt
	s.lifeMu.Unlock()
	if ns := s.lastFrameAt.Load(); ns != 0 {
		st.LastFrameAt = time.Unix(0, ns)
	}
	return st
}

func (s *Session) run() {
	defer close(s.done)
	if s.ctx.Err() != nil {
		s.setState(StateStopped)
		return
	}

	s.metrics.sessionUp()
	defer s.metrics.sessionDown()
	defer s.closeSource()
	defer s.running.Store(false)

	s.log.Info("session started")
	if err := s.connect(); err != nil && s.ctx.Err() == nil {
		s.log.Warn("initial connect failed",
			zap.String("kind", KindSourceUnreachable),
			zap.Error(err))
	}

	for {
		if s.ctx.Err() != nil {
			s.setState(StateStopped)
			s.log.Info("session stopped")
			return
		}

		if s.src == nil {
			if !s.reconnect() {
				s.setState(StateStopped)
				return
			}
		} else if f, err := s.src.Read(s.ctx); err != nil {
			if s.ctx.Err() != nil {
				continue
			}
			s.log.Warn("source read failed",
				zap.String("kind", KindSourceUnreachable),
				zap.Error(err))
			s.closeSource()
			s.setState(StateReconnecting)
			continue
		} else {
			s.publish(f)
			s.attempts = 0
			s.attemptsSeen.Store(0)
		}

		sleepCtx(s.ctx, s.poll)
	}
}

// connect opens the source and reads the first frame. On success the frame
// is published, the attempt counter resets and the state is connected.
func (s *Session) connect() error {
	src, err := s.opener.Open(s.ctx, s.url)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	f, err := src.Read(s.ctx)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("first read: %w", err)
	}
	s.src = src
	s.publish(f)
	s.attempts = 0
	s.attemptsSeen.Store(0)
	s.setState(StateConnected)
	return nil
}

func (s *Session) closeSource() {
	if s.src == nil {
		return
	}
	if err := s.src.Close(); err != nil {
		s.log.Debug("source close", zap.Error(err))
	}
	s.src = nil
}

func (s *Session) publish(f *Frame) {
	if f.Empty() {
		return
	}
	s.seq++
	f.Seq = s.seq
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}

	s.frameMu.Lock()
	s.latest = f
	close(s.updated)
	s.updated = make(chan struct{})
	s.frameMu.Unlock()

	s.framesRead.Add(1)
	s.lastFrameAt.Store(f.Timestamp.UnixNano())
	s.metrics.frameRead(s.cameraID)
}
