package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeTransport hands out a controllable signal channel and records
// whether release was called.
type fakeTransport struct {
	signals  chan Signal
	openErr  error
	released chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		signals:  make(chan Signal, 1),
		released: make(chan struct{}, 1),
	}
}

func (f *fakeTransport) Open(_ context.Context, _ string) (<-chan Signal, func(), error) {
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	return f.signals, func() {
		select {
		case f.released <- struct{}{}:
		default:
		}
	}, nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func logContains(l *Log, text string) bool {
	for _, m := range l.Messages() {
		if strings.Contains(m.Text, text) {
			return true
		}
	}
	return false
}

func TestAuthSuccessAppendsOneEntry(t *testing.T) {
	tr := newFakeTransport()
	log := NewLog()
	a := NewAuthFlow(log, tr, nil)

	if !a.Begin(context.Background(), "https://auth.example/start") {
		t.Fatal("expected Begin to start the attempt")
	}
	tr.signals <- Signal{Service: "gmail"}

	waitFor(t, "success entry", func() bool { return logContains(log, authSuccessText) })
	waitFor(t, "release", func() bool {
		select {
		case <-tr.released:
			return true
		default:
			return false
		}
	})
	waitFor(t, "idle", func() bool { return !a.Active() })

	if log.Len() != 1 {
		t.Errorf("expected exactly one log entry, got %d", log.Len())
	}
}

func TestAuthErrorSignal(t *testing.T) {
	tr := newFakeTransport()
	log := NewLog()
	a := NewAuthFlow(log, tr, nil)

	a.Begin(context.Background(), "https://auth.example/start")
	tr.signals <- Signal{Err: errors.New("access_denied")}

	waitFor(t, "failure entry", func() bool {
		return logContains(log, "Authorization failed: access_denied")
	})
	waitFor(t, "idle", func() bool { return !a.Active() })
}

func TestAuthTimeoutIsOptimistic(t *testing.T) {
	tr := newFakeTransport()
	log := NewLog()
	a := NewAuthFlow(log, tr, nil)
	a.SetTimeout(5 * time.Millisecond)

	a.Begin(context.Background(), "https://auth.example/start")

	waitFor(t, "timeout entry", func() bool { return logContains(log, authTimeoutText) })
	waitFor(t, "release", func() bool {
		select {
		case <-tr.released:
			return true
		default:
			return false
		}
	})

	// A signal arriving after the attempt resolved must not append.
	tr.signals <- Signal{Service: "gmail"}
	time.Sleep(20 * time.Millisecond)
	if log.Len() != 1 {
		t.Errorf("late signal appended an entry: %d entries", log.Len())
	}
}

func TestAuthOpenFailureAppendsBlocked(t *testing.T) {
	tr := newFakeTransport()
	tr.openErr = errors.New("no browser available")
	log := NewLog()
	a := NewAuthFlow(log, tr, nil)

	a.Begin(context.Background(), "https://auth.example/start")

	waitFor(t, "blocked entry", func() bool { return logContains(log, authBlockedText) })
	waitFor(t, "idle", func() bool { return !a.Active() })
}

func TestSecondBeginIgnoredWhileActive(t *testing.T) {
	tr := newFakeTransport()
	log := NewLog()
	a := NewAuthFlow(log, tr, nil)

	if !a.Begin(context.Background(), "https://auth.example/one") {
		t.Fatal("first Begin should start")
	}
	waitFor(t, "active", func() bool { return a.Active() })

	if a.Begin(context.Background(), "https://auth.example/two") {
		t.Error("second Begin should be ignored while the first is open")
	}

	tr.signals <- Signal{}
	waitFor(t, "idle", func() bool { return !a.Active() })

	if log.Len() != 1 {
		t.Errorf("expected one entry from one attempt, got %d", log.Len())
	}

	// Once idle, a fresh attempt starts again.
	if !a.Begin(context.Background(), "https://auth.example/three") {
		t.Error("Begin should start again after the previous attempt resolved")
	}
	tr.signals <- Signal{}
	waitFor(t, "idle again", func() bool { return !a.Active() })
}

func TestAuthContextCancelAppendsNothing(t *testing.T) {
	tr := newFakeTransport()
	log := NewLog()
	a := NewAuthFlow(log, tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	a.Begin(ctx, "https://auth.example/start")
	waitFor(t, "active", func() bool { return a.Active() })
	cancel()

	waitFor(t, "idle", func() bool { return !a.Active() })
	if log.Len() != 0 {
		t.Errorf("shutdown must not append, got %d entries", log.Len())
	}
}
