package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"

	"github.com/dhowell/mailpilot/internal/backend"
)

// EmailSender is the backend collaborator that actually sends an
// approved composition.
type EmailSender interface {
	SendEmail(ctx context.Context, req backend.SendEmailRequest) (*backend.SendEmailResponse, error)
}

// ContactLookup resolves a free-text name into an email address.
type ContactLookup interface {
	LookupContact(ctx context.Context, name string) (*backend.LookupResponse, error)
}

// SendRecorder persists approved sends and returns a reference id the
// action-result message carries for later detail lookup.
type SendRecorder interface {
	RecordSend(ctx context.Context, recipient, subject, preview, emailID string) (string, error)
}

// PendingAction is a user-reviewable draft awaiting approval or
// cancellation. At most one is live at a time.
type PendingAction struct {
	ID        string
	Recipient string
	Subject   string
	Body      string
}

// PendingCoordinator holds the single pending-action slot. Opening a
// new action replaces any existing one without a cancellation record;
// approve and cancel both clear the slot and append their terminal log
// entry.
type PendingCoordinator struct {
	mu      sync.Mutex
	current *PendingAction

	log      *Log
	sender   EmailSender
	lookup   ContactLookup
	recorder SendRecorder
	logger   *slog.Logger
}

// NewPendingCoordinator wires the coordinator. recorder may be nil; the
// action-result message then references the backend's email id.
func NewPendingCoordinator(
	log *Log,
	sender EmailSender,
	lookup ContactLookup,
	recorder SendRecorder,
	logger *slog.Logger,
) *PendingCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingCoordinator{
		log:      log,
		sender:   sender,
		lookup:   lookup,
		recorder: recorder,
		logger:   logger,
	}
}

// Open installs a new pending action, unconditionally discarding any
// action already in the slot.
func (p *PendingCoordinator) Open(req ActionRequest) PendingAction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.logger.Info("pending action superseded",
			"old_id", p.current.ID, "recipient", req.Recipient)
	}

	p.current = &PendingAction{
		ID:        uuid.New().String(),
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
	}
	return *p.current
}

// Current returns a copy of the live pending action, or nil.
func (p *PendingCoordinator) Current() *PendingAction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil
	}
	copied := *p.current
	return &copied
}

// Edit mutates the live action's subject and body in place. It is a
// no-op when no action is pending.
func (p *PendingCoordinator) Edit(subject, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	p.current.Subject = subject
	p.current.Body = body
}

// EditRecipient sets the recipient field. When the value is not an
// address-shaped string it consults the lookup collaborator and, on
// success, silently substitutes the resolved address. The returned
// status string is empty when no resolution was needed.
func (p *PendingCoordinator) EditRecipient(ctx context.Context, value string) string {
	if RecipientLooksValid(value) {
		p.setRecipient(value)
		return ""
	}

	resp, err := p.lookup.LookupContact(ctx, value)
	if err != nil || !resp.Success || resp.EmailAddress == "" {
		if err != nil {
			p.logger.Warn("contact lookup failed", "name", value, "error", err)
		}
		p.setRecipient(value)
		return fmt.Sprintf("No email address found for %q.", value)
	}

	p.setRecipient(resp.EmailAddress)
	return fmt.Sprintf("Resolved %q to %s.", value, resp.EmailAddress)
}

func (p *PendingCoordinator) setRecipient(value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Recipient = value
	}
}

// CanApprove reports whether the live action's recipient looks like a
// deliverable address. This gates the approve control in the UI; it is
// not re-checked here on Approve.
func (p *PendingCoordinator) CanApprove() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && RecipientLooksValid(p.current.Recipient)
}

// Approve sends the current field values and clears the slot. The slot
// is cleared regardless of the send outcome: the send is attempted at
// most once, with success or failure recorded as a log entry.
func (p *PendingCoordinator) Approve(ctx context.Context) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	action := *p.current
	p.current = nil
	p.mu.Unlock()

	resp, err := p.sender.SendEmail(ctx, backend.SendEmailRequest{
		Recipient: action.Recipient,
		Subject:   action.Subject,
		Body:      action.Body,
	})
	if err != nil {
		p.logger.Error("send failed", "recipient", action.Recipient, "error", err)
		p.log.AppendText(OriginAssistant,
			fmt.Sprintf("I couldn't send the email to %s. Please try again.", action.Recipient))
		return
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("I couldn't send the email to %s.", action.Recipient)
		}
		p.log.AppendText(OriginAssistant, msg)
		return
	}

	refID := resp.EmailID
	if p.recorder != nil {
		id, err := p.recorder.RecordSend(
			ctx, action.Recipient, action.Subject, preview(action.Body), resp.EmailID,
		)
		if err != nil {
			p.logger.Warn("recording sent email failed", "error", err)
		} else {
			refID = id
		}
	}

	p.log.Append(Message{
		Origin: OriginAssistant,
		Kind:   KindAction,
		Text:   fmt.Sprintf("Email sent to %s.", action.Recipient),
		Action: &ActionRecord{
			Recipient:   action.Recipient,
			Subject:     action.Subject,
			ReferenceID: refID,
		},
	})
}

// Cancel discards the pending action and records the cancellation.
func (p *PendingCoordinator) Cancel() {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.mu.Unlock()

	p.log.AppendText(OriginAssistant, "Email cancelled.")
}

// RecipientLooksValid reports whether value is an email-shaped string.
func RecipientLooksValid(value string) bool {
	return checkmail.ValidateFormat(value) == nil
}

// preview truncates a body for history storage, backing off to the
// nearest rune boundary so the stored text stays valid UTF-8.
func preview(body string) string {
	const max = 200
	if len(body) <= max {
		return body
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "…"
}
