package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dhowell/mailpilot/internal/backend"
)

// fakeBackend scripts chat and archive behavior per call index.
type fakeBackend struct {
	chatFn    func(call int) (*backend.ChatResponse, error)
	archiveFn func(emailID string) (*backend.ArchiveResponse, error)

	chatCalls    int
	archiveCalls int
	lastConv     []backend.ChatMessage
}

func (f *fakeBackend) Chat(_ context.Context, conv []backend.ChatMessage) (*backend.ChatResponse, error) {
	f.chatCalls++
	f.lastConv = conv
	return f.chatFn(f.chatCalls)
}

func (f *fakeBackend) ArchiveEmail(_ context.Context, emailID string) (*backend.ArchiveResponse, error) {
	f.archiveCalls++
	if f.archiveFn == nil {
		return &backend.ArchiveResponse{Success: true}, nil
	}
	return f.archiveFn(emailID)
}

// timeoutErr satisfies backend.IsTimeout.
var timeoutErr = fmt.Errorf("calling chat: %w", context.DeadlineExceeded)

func newTestOrchestrator(fb *fakeBackend) (*Orchestrator, *Log) {
	log := NewLog()
	o := NewOrchestrator(log, fb, fb, nil, nil, nil)
	o.backoffUnit = time.Millisecond
	return o, log
}

func lastText(t *testing.T, l *Log) string {
	t.Helper()
	msgs := l.Messages()
	if len(msgs) == 0 {
		t.Fatal("log is empty")
	}
	return msgs[len(msgs)-1].Text
}

func TestSendAppendsUserAndReply(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) {
		return &backend.ChatResponse{Success: true, Message: "Nothing new."}, nil
	}}
	o, log := newTestOrchestrator(fb)

	out := o.Send(context.Background(), "anything new?")

	if _, ok := out.(PlainReply); !ok {
		t.Fatalf("expected PlainReply, got %T", out)
	}
	msgs := log.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(msgs))
	}
	if msgs[0].Origin != OriginUser || msgs[0].Text != "anything new?" {
		t.Errorf("user message wrong: %+v", msgs[0])
	}
	if msgs[1].Origin != OriginAssistant || msgs[1].Text != "Nothing new." {
		t.Errorf("assistant message wrong: %+v", msgs[1])
	}
}

func TestSendProjectsPriorConversation(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) {
		return &backend.ChatResponse{Success: true, Message: "ok"}, nil
	}}
	o, log := newTestOrchestrator(fb)
	log.AppendText(OriginAssistant, GreetingText)

	o.Send(context.Background(), "hi")

	if len(fb.lastConv) != 2 {
		t.Fatalf("expected 2 projected messages, got %d", len(fb.lastConv))
	}
	if fb.lastConv[0].IsUser || fb.lastConv[0].Text != GreetingText {
		t.Errorf("greeting not projected first: %+v", fb.lastConv[0])
	}
	if !fb.lastConv[1].IsUser {
		t.Errorf("user turn not projected: %+v", fb.lastConv[1])
	}
}

func TestRetryStatusLifecycle(t *testing.T) {
	fb := &fakeBackend{chatFn: func(call int) (*backend.ChatResponse, error) {
		if call <= 2 {
			return nil, timeoutErr
		}
		return &backend.ChatResponse{Success: true, Message: "late but here"}, nil
	}}
	o, log := newTestOrchestrator(fb)

	var sleeps []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		// The transient notice must be live exactly while backing off.
		if !log.HasStatus() {
			t.Error("expected a status message during backoff")
		}
		sleeps = append(sleeps, d)
		return nil
	}

	out := o.Send(context.Background(), "list my emails")

	if out == nil {
		t.Fatal("expected a resolved outcome")
	}
	if fb.chatCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", fb.chatCalls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 backoffs, got %d", len(sleeps))
	}
	if sleeps[0] != 1*time.Millisecond || sleeps[1] != 2*time.Millisecond {
		t.Errorf("backoff not linear: %v", sleeps)
	}
	if log.HasStatus() {
		t.Error("status message survived call resolution")
	}
	if got := lastText(t, log); got != "late but here" {
		t.Errorf("unexpected final entry: %q", got)
	}
}

func TestRetryBoundExhausted(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) {
		return nil, timeoutErr
	}}
	o, log := newTestOrchestrator(fb)

	out := o.Send(context.Background(), "hello?")

	if out != nil {
		t.Fatalf("expected nil outcome on exhausted retries, got %T", out)
	}
	if fb.chatCalls != MaxRetries+1 {
		t.Errorf("expected %d attempts, got %d", MaxRetries+1, fb.chatCalls)
	}
	if log.HasStatus() {
		t.Error("status message survived exhausted retries")
	}
	if got := lastText(t, log); got != connectivityFailureText {
		t.Errorf("unexpected failure text: %q", got)
	}
}

func TestNonTimeoutErrorNotRetried(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) {
		return nil, &backend.ServerError{Status: 502}
	}}
	o, log := newTestOrchestrator(fb)

	o.Send(context.Background(), "hi")

	if fb.chatCalls != 1 {
		t.Errorf("server errors must not be retried, got %d attempts", fb.chatCalls)
	}
	if got := lastText(t, log); got != serverFailureText {
		t.Errorf("unexpected failure text: %q", got)
	}
}

func TestUnauthorizedClearsSessionViaCallback(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) {
		return nil, fmt.Errorf("POST /email-tools/chat: %w", backend.ErrUnauthorized)
	}}
	log := NewLog()
	cleared := false
	o := NewOrchestrator(log, fb, fb, nil, func() { cleared = true }, nil)

	o.Send(context.Background(), "hi")

	if !cleared {
		t.Error("expected the unauthenticated callback to fire")
	}
	if got := lastText(t, log); got != sessionExpiredText {
		t.Errorf("unexpected failure text: %q", got)
	}
}

func TestGenericFailureText(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) {
		return nil, errors.New("decoding response from /email-tools/chat: unexpected EOF")
	}}
	o, log := newTestOrchestrator(fb)

	o.Send(context.Background(), "hi")

	if got := lastText(t, log); got != genericErrorText {
		t.Errorf("unexpected failure text: %q", got)
	}
}

func TestCompositionOpensPendingSlot(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) {
		return &backend.ChatResponse{
			Success:          true,
			Message:          compositionPlaceholder,
			EmailComposition: &backend.EmailComposition{Recipient: "a@b.com", Subject: "hi", Body: "text"},
		}, nil
	}}
	log := NewLog()
	pending := NewPendingCoordinator(log, nil, nil, nil, nil)
	o := NewOrchestrator(log, fb, fb, pending, nil, nil)

	out := o.Send(context.Background(), "email alice")

	if _, ok := out.(ActionRequest); !ok {
		t.Fatalf("expected ActionRequest, got %T", out)
	}
	action := pending.Current()
	if action == nil {
		t.Fatal("expected a pending action")
	}
	if action.Recipient != "a@b.com" {
		t.Errorf("unexpected recipient: %q", action.Recipient)
	}
	// The placeholder is review-panel chrome, not conversation.
	for _, m := range log.Messages() {
		if m.Text == compositionPlaceholder {
			t.Error("composition placeholder leaked into the log")
		}
	}
}

func TestArchiveRemovesEmail(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) { return nil, nil }}
	o, log := newTestOrchestrator(fb)
	msg := listMessage(log, "e1", "e2")

	o.Archive(context.Background(), msg.ID, "e1")

	if fb.archiveCalls != 1 {
		t.Errorf("expected 1 backend call, got %d", fb.archiveCalls)
	}
	if log.HasEmail(msg.ID, "e1") {
		t.Error("email should have been removed from the list")
	}
	if !log.HasEmail(msg.ID, "e2") {
		t.Error("other email should remain")
	}
}

func TestArchiveAbsentEmailSkipsBackend(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) { return nil, nil }}
	o, log := newTestOrchestrator(fb)
	msg := listMessage(log, "e1")

	o.Archive(context.Background(), msg.ID, "e1")
	o.Archive(context.Background(), msg.ID, "e1")

	if fb.archiveCalls != 1 {
		t.Errorf("repeat archive must not hit the backend again, got %d calls", fb.archiveCalls)
	}
}

func TestArchiveAllLeavesSentinel(t *testing.T) {
	fb := &fakeBackend{chatFn: func(int) (*backend.ChatResponse, error) { return nil, nil }}
	o, log := newTestOrchestrator(fb)
	msg := listMessage(log, "e1", "e2")

	o.Archive(context.Background(), msg.ID, "e1")
	o.Archive(context.Background(), msg.ID, "e2")

	got := log.Messages()[0]
	if got.Text != AllArchivedText {
		t.Errorf("expected sentinel summary, got %q", got.Text)
	}
	if len(got.Emails) != 0 {
		t.Errorf("expected empty list, got %d emails", len(got.Emails))
	}
}

func TestArchiveBackendRefusalKeepsEmail(t *testing.T) {
	fb := &fakeBackend{
		chatFn: func(int) (*backend.ChatResponse, error) { return nil, nil },
		archiveFn: func(string) (*backend.ArchiveResponse, error) {
			return &backend.ArchiveResponse{Success: false, Message: "Could not archive that email."}, nil
		},
	}
	o, log := newTestOrchestrator(fb)
	msg := listMessage(log, "e1")

	o.Archive(context.Background(), msg.ID, "e1")

	if !log.HasEmail(msg.ID, "e1") {
		t.Error("refused archive must not mutate the list")
	}
	if got := lastText(t, log); got != "Could not archive that email." {
		t.Errorf("unexpected refusal text: %q", got)
	}
}
