package chat

import (
	"fmt"

	"github.com/dhowell/mailpilot/internal/backend"
)

// compositionPlaceholder is the assistant text the backend sends
// alongside an email composition. It is presentation for the review
// panel, not conversation, so the plain-reply path drops it.
const compositionPlaceholder = "Please review the email below before sending."

// genericFailureText is used when the backend reports failure without a
// message of its own.
const genericFailureText = "Sorry, I'm having trouble with email tools right now. Please try again."

// Outcome is the single resolved interpretation of a backend response.
// Exactly one concrete type is produced per response, following a fixed
// priority order; downstream code switches on the concrete type and
// never re-inspects the raw payload.
type Outcome interface {
	outcome()
}

// OAuthChallenge asks the user to complete an out-of-band authorization
// before the requested tool can run. It outranks every other outcome,
// even when the response reports failure.
type OAuthChallenge struct {
	Message    string
	AuthURL    string
	ButtonText string
}

// ActionRequest is a draft email the assistant wants reviewed and
// approved before sending.
type ActionRequest struct {
	Recipient string
	Subject   string
	Body      string
}

// ListResult is a retrieved set of inbox emails with a summary line.
type ListResult struct {
	Summary string
	Emails  []EmailSummary
}

// PlainReply is the fallback outcome: an assistant message plus zero or
// more tool results, each rendered as its own log entry.
type PlainReply struct {
	Message     string
	ToolResults []backend.ToolResult
}

// Failure surfaces a domain-level error reported by the backend.
type Failure struct {
	Message string
}

func (OAuthChallenge) outcome() {}
func (ActionRequest) outcome()  {}
func (ListResult) outcome()     {}
func (PlainReply) outcome()     {}
func (Failure) outcome()        {}

// Classify resolves a chat response to exactly one Outcome. Evaluation
// order is fixed: an authorization requirement wins unconditionally, a
// failed response short-circuits next, then a proposed composition,
// then a non-empty email list, and finally the plain reply.
func Classify(resp *backend.ChatResponse) Outcome {
	if req := resp.OAuthChallenge(); req != nil {
		return OAuthChallenge{
			Message:    resp.Message,
			AuthURL:    req.AuthURL,
			ButtonText: req.ButtonText,
		}
	}

	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = genericFailureText
		}
		return Failure{Message: msg}
	}

	if comp := resp.EmailComposition; comp != nil {
		return ActionRequest{
			Recipient: comp.Recipient,
			Subject:   comp.Subject,
			Body:      comp.Body,
		}
	}

	if len(resp.GmailEmails) > 0 {
		emails := make([]EmailSummary, 0, len(resp.GmailEmails))
		for _, e := range resp.GmailEmails {
			emails = append(emails, summaryFromBackend(e))
		}
		summary := resp.Message
		if summary == "" {
			summary = fmt.Sprintf(
				"I found %d emails in your inbox. Here are your recent emails:",
				len(emails),
			)
		}
		return ListResult{Summary: summary, Emails: emails}
	}

	return PlainReply{
		Message:     resp.Message,
		ToolResults: resp.ToolResults,
	}
}
