package stream

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// State of a session's source connection.
type State int32

const (
	StateConnected State = iota
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "connected":
		*s = StateConnected
	case "reconnecting":
		*s = StateReconnecting
	case "stopped":
		*s = StateStopped
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// ReconnectPolicy bounds how a session recovers from source failures.
type ReconnectPolicy struct {
	MaxAttempts int           // consecutive failed attempts before the session stops
	Delay       time.Duration // wait before every attempt
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{MaxAttempts: 5, Delay: 5 * time.Second}
}

// reconnect makes one reconnect attempt. It returns false when the session
// must stop, either because the budget is spent or the session is stopping.
// The budget is checked before the attempt, so with MaxAttempts N exactly N
// attempts are made.
func (s *Session) reconnect() bool {
	if s.attempts >= s.policy.MaxAttempts {
		s.exhaust()
		return false
	}
	s.attempts++
	s.attemptsSeen.Store(int64(s.attempts))
	s.setState(StateReconnecting)
	s.reconnects.Add(1)
	s.metrics.reconnectAttempt(s.cameraID)

	s.log.Info("reconnecting",
		zap.Int("attempt", s.attempts),
		zap.Int("max_attempts", s.policy.MaxAttempts),
		zap.Duration("delay", s.policy.Delay))

	if !sleepCtx(s.ctx, s.policy.Delay) {
		return false
	}

	s.closeSource()
	if err := s.connect(); err != nil {
		if s.ctx.Err() != nil {
			return false
		}
		s.log.Warn("reconnect attempt failed",
			zap.Int("attempt", s.attempts),
			zap.String("kind", KindSourceUnreachable),
			zap.Error(err))
		return true
	}

	s.log.Info("reconnected", zap.Int("attempt", s.attempts))
	return true
}

// exhaust stops the session for good. Logged once per session.
func (s *Session) exhaust() {
	s.exhausted.Store(true)
	s.setState(StateStopped)
	s.running.Store(false)
	s.metrics.sessionExhausted(s.cameraID)
	s.log.Error("stream exhausted, giving up",
		zap.String("kind", KindStreamExhausted),
		zap.Int("attempts", s.attempts),
		zap.Error(ErrStreamExhausted))
}

// sleepCtx waits d or until ctx is done. It reports whether the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
