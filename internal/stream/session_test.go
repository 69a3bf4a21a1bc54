package stream

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func attemptsLogged(logs *observer.ObservedLogs) []int64 {
	var out []int64
	for _, e := range logs.FilterMessage("reconnecting").All() {
		out = append(out, e.ContextMap()["attempt"].(int64))
	}
	return out
}

func TestSessionReconnectBudget(t *testing.T) {
	for _, max := range []int{0, 1, 5} {
		core, logs := observer.New(zap.DebugLevel)
		cam := &fakeCamera{failOpen: true}
		s := NewSession(zap.New(core), cam, fastConfig(max), nil)

		if err := s.Start(); err != nil {
			t.Fatal(err)
		}
		waitDone(t, s, 2*time.Second)

		opens, _, _ := cam.counts()
		if want := 1 + max; opens != want {
			t.Errorf("max=%d: opens = %d, want %d", max, opens, want)
		}
		if got := s.Stats().Reconnects; got != uint64(max) {
			t.Errorf("max=%d: reconnect attempts = %d, want %d", max, got, max)
		}
		if s.Running() || s.State() != StateStopped {
			t.Errorf("max=%d: running=%v state=%v after exhaustion", max, s.Running(), s.State())
		}
		if !errors.Is(s.Err(), ErrStreamExhausted) {
			t.Errorf("max=%d: Err() = %v", max, s.Err())
		}
		if n := logs.FilterField(zap.String("kind", KindStreamExhausted)).Len(); n != 1 {
			t.Errorf("max=%d: exhausted logged %d times", max, n)
		}
		s.Stop()
	}
}

func TestSessionReconnectCountResetsAfterSuccess(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cam := &fakeCamera{plan: []bool{true, false, true, false}}
	s := NewSession(zap.New(core), cam, fastConfig(5), nil)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s, 2*time.Second)

	got := attemptsLogged(logs)
	want := []int64{1, 1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("attempts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("attempts = %v, want %v", got, want)
		}
	}
	if f := s.CurrentFrame(); f == nil || f.Seq != 2 {
		t.Errorf("last frame = %+v, want seq 2", f)
	}
}

func TestSessionStartTwice(t *testing.T) {
	cam := &fakeCamera{block: true}
	s := NewSession(zap.NewNop(), cam, fastConfig(5), nil)
	defer s.Stop()

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); !errors.Is(err, ErrSessionStarted) {
		t.Errorf("second Start() = %v, want ErrSessionStarted", err)
	}
}

func TestSessionStopClosesSource(t *testing.T) {
	cam := &fakeCamera{plan: []bool{true}, block: true}
	s := NewSession(zap.NewNop(), cam, fastConfig(5), nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for s.CurrentFrame() == nil {
		if time.Now().After(deadline) {
			t.Fatal("no frame published")
		}
		time.Sleep(time.Millisecond)
	}
	if s.State() != StateConnected {
		t.Errorf("state = %v, want connected", s.State())
	}

	s.Stop()
	s.Stop()

	opens, closes, _ := cam.counts()
	if opens != 1 || closes != 1 {
		t.Errorf("opens=%d closes=%d, want 1/1", opens, closes)
	}
	if s.Running() {
		t.Error("running after Stop")
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v after explicit stop", s.Err())
	}
}

func TestSessionStopBeforeStart(t *testing.T) {
	cam := &fakeCamera{}
	s := NewSession(zap.NewNop(), cam, fastConfig(5), nil)
	s.Stop()
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s, time.Second)
	if s.Running() {
		t.Error("running after stop-then-start")
	}
	if opens, _, _ := cam.counts(); opens != 0 {
		t.Errorf("opens = %d, want 0", opens)
	}
}

func TestSessionSequenceIsMonotonic(t *testing.T) {
	cam := &fakeCamera{plan: []bool{true, true, true, false, true, true}}
	s := NewSession(zap.NewNop(), cam, fastConfig(5), nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	var last uint64
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-s.Done():
			if last == 0 {
				t.Fatal("no frames observed")
			}
			return
		case <-deadline:
			t.Fatal("session did not finish")
		default:
		}
		if f := s.CurrentFrame(); f != nil {
			if f.Seq < last {
				t.Fatalf("seq went backwards: %d after %d", f.Seq, last)
			}
			last = f.Seq
		}
		time.Sleep(100 * time.Microsecond)
	}
}
