package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhowell/mailpilot/internal/backend"
)

// MaxRetries bounds how many times a timed-out chat call is retried.
const MaxRetries = 2

// GreetingText opens every conversation.
const GreetingText = "Hello! I'm your AI assistant. How can I help with your email today?"

// User-facing texts for the failure taxonomy. Every failing code path
// ends in exactly one of these being appended to the log.
const (
	connectivityFailureText = "I couldn't reach the server. Please check your connection and try again."
	serverFailureText       = "The server is experiencing issues right now. Please try again in a moment."
	sessionExpiredText      = "Your session has expired. Please log in again."
	genericErrorText        = "Sorry, I'm having trouble responding right now. Please try again."
)

// ToolChat is the backend collaborator for a conversational turn.
type ToolChat interface {
	Chat(ctx context.Context, messages []backend.ChatMessage) (*backend.ChatResponse, error)
}

// EmailArchiver is the backend collaborator for archiving a mailbox item.
type EmailArchiver interface {
	ArchiveEmail(ctx context.Context, emailID string) (*backend.ArchiveResponse, error)
}

// Orchestrator drives a conversational turn: it submits the projected
// conversation to the backend with bounded retry, classifies the
// response, and applies the outcome to the log or the pending-action
// slot. All failures become log entries; none escape.
type Orchestrator struct {
	log     *Log
	chat    ToolChat
	archive EmailArchiver
	pending *PendingCoordinator
	logger  *slog.Logger

	// onUnauthenticated is invoked after an unauthorized failure has
	// been surfaced in the log, so the host can route to login without
	// the core knowing about navigation.
	onUnauthenticated func()

	// backoffUnit scales the linear retry backoff (attempt × unit).
	// Tests shrink it.
	backoffUnit time.Duration

	// sleep waits out the retry backoff. Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the turn driver. pending may be nil when the
// caller never expects composition outcomes (tests exercising only the
// read path).
func NewOrchestrator(
	log *Log,
	chat ToolChat,
	archive EmailArchiver,
	pending *PendingCoordinator,
	onUnauthenticated func(),
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		log:               log,
		chat:              chat,
		archive:           archive,
		pending:           pending,
		onUnauthenticated: onUnauthenticated,
		logger:            logger,
		backoffUnit:       time.Second,
		sleep:             sleepCtx,
	}
}

// Send runs one conversational turn for the given user utterance. It
// blocks through retries and returns the resolved outcome, or nil when
// the call failed outright (the failure is already in the log).
func (o *Orchestrator) Send(ctx context.Context, text string) Outcome {
	o.log.AppendText(OriginUser, text)

	resp, err := o.callWithRetry(ctx, o.log.Projection())
	if err != nil {
		o.appendCallFailure(err)
		return nil
	}

	out := Classify(resp)
	o.apply(out)
	return out
}

// callWithRetry attempts the chat call, retrying transient timeouts up
// to MaxRetries with linear backoff. A transient status message exists
// only between its append and the pre-retry removal, so no exit path
// can leave one in the log.
func (o *Orchestrator) callWithRetry(
	ctx context.Context,
	conv []backend.ChatMessage,
) (*backend.ChatResponse, error) {
	for attempt := 1; ; attempt++ {
		resp, err := o.chat.Chat(ctx, conv)
		if err == nil {
			return resp, nil
		}
		if !backend.IsTimeout(err) || attempt > MaxRetries {
			return nil, err
		}

		o.logger.Warn("chat call timed out, retrying",
			"attempt", attempt, "max_retries", MaxRetries)

		status := o.log.Append(Message{
			Origin: OriginAssistant,
			Kind:   KindStatus,
			Text:   fmt.Sprintf("Connection timed out. Retrying (%d/%d)...", attempt, MaxRetries),
		})
		waitErr := o.sleep(ctx, time.Duration(attempt)*o.backoffUnit)
		o.log.Remove(status.ID)
		if waitErr != nil {
			return nil, waitErr
		}
	}
}

// apply materializes a classified outcome into log entries or the
// pending-action slot.
func (o *Orchestrator) apply(out Outcome) {
	switch out := out.(type) {
	case OAuthChallenge:
		text := out.Message
		if text == "" {
			text = "Authorization is required before I can access your mailbox."
		}
		button := out.ButtonText
		if button == "" {
			button = "Authorize Gmail Access"
		}
		o.log.Append(Message{
			Origin: OriginAssistant,
			Kind:   KindOAuth,
			Text:   text,
			Auth:   &AuthChallenge{AuthURL: out.AuthURL, ButtonText: button},
		})

	case ActionRequest:
		if o.pending != nil {
			o.pending.Open(out)
		}

	case ListResult:
		o.log.Append(Message{
			Origin: OriginAssistant,
			Kind:   KindList,
			Text:   out.Summary,
			Emails: out.Emails,
		})

	case PlainReply:
		if out.Message != "" && out.Message != compositionPlaceholder {
			o.log.AppendText(OriginAssistant, out.Message)
		}
		for _, tr := range out.ToolResults {
			o.log.Append(Message{
				Origin:     OriginAssistant,
				Kind:       KindToolResult,
				Text:       renderToolResult(tr),
				ToolResult: tr.Result,
			})
		}

	case Failure:
		o.log.AppendText(OriginAssistant, out.Message)
	}
}

// Archive archives one email from a list message: backend first, then
// the local list mutation. Archiving an email that is no longer in the
// message is a no-op.
func (o *Orchestrator) Archive(ctx context.Context, messageID, emailID string) {
	if !o.log.HasEmail(messageID, emailID) {
		return
	}

	resp, err := o.archive.ArchiveEmail(ctx, emailID)
	if err != nil {
		o.appendCallFailure(err)
		return
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = genericFailureText
		}
		o.log.AppendText(OriginAssistant, msg)
		return
	}

	o.log.RemoveEmail(messageID, emailID)
}

// appendCallFailure converts a transport-level error into its
// user-facing log entry.
func (o *Orchestrator) appendCallFailure(err error) {
	o.logger.Error("backend call failed", "error", err)

	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		o.log.AppendText(OriginAssistant, sessionExpiredText)
		if o.onUnauthenticated != nil {
			o.onUnauthenticated()
		}
	case backend.IsTimeout(err):
		o.log.AppendText(OriginAssistant, connectivityFailureText)
	case backend.IsServerError(err):
		o.log.AppendText(OriginAssistant, serverFailureText)
	default:
		o.log.AppendText(OriginAssistant, genericErrorText)
	}
}

// renderToolResult formats a tool result blob for display.
func renderToolResult(tr backend.ToolResult) string {
	var pretty json.RawMessage
	if len(tr.Result) > 0 {
		var buf any
		if err := json.Unmarshal(tr.Result, &buf); err == nil {
			if b, err := json.MarshalIndent(buf, "", "  "); err == nil {
				pretty = b
			}
		}
	}
	if pretty == nil {
		pretty = tr.Result
	}
	return fmt.Sprintf("Tool result: %s", pretty)
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
