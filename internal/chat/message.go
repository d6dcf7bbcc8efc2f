// Package chat implements the conversational orchestration core: the
// message log, response classification, bounded retry around the
// tool-chat call, the single-slot pending email action, and the
// out-of-band authorization handshake. It is UI-agnostic; the terminal
// front end renders snapshots of the log and drives the operations.
package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/dhowell/mailpilot/internal/backend"
)

// Origin identifies who a message is attributed to.
type Origin int

const (
	OriginUser Origin = iota
	OriginAssistant
)

// Kind discriminates the message variants carried by the log.
type Kind int

const (
	// KindPlain is an ordinary text message.
	KindPlain Kind = iota

	// KindStatus is a transient retry notice. Status messages are the
	// only entries ever removed from the log, and only once the retry
	// loop has concluded.
	KindStatus

	// KindToolResult carries a structured tool result blob.
	KindToolResult

	// KindOAuth carries an authorization challenge the user can act on.
	KindOAuth

	// KindList carries an ordered set of email summaries.
	KindList

	// KindAction records an approved-and-sent email.
	KindAction
)

// AuthChallenge is the payload of a KindOAuth message.
type AuthChallenge struct {
	AuthURL    string
	ButtonText string
}

// EmailSummary is a lightweight projection of a remote mailbox item,
// owned by the list message that introduced it.
type EmailSummary struct {
	ID       string
	From     string
	Subject  string
	Snippet  string
	Date     string
	ThreadID string
}

// ActionRecord is the payload of a KindAction message. ReferenceID
// resolves against the local history store for later detail lookup.
type ActionRecord struct {
	Recipient   string
	Subject     string
	ReferenceID string
}

// Message is a single conversation entry. Entries are immutable once
// appended, with two exceptions: status messages are removed when their
// retry attempt concludes, and list messages shrink as their emails are
// archived.
type Message struct {
	ID        string
	Text      string
	Origin    Origin
	CreatedAt time.Time
	Kind      Kind

	// Variant payloads; at most one is set, matching Kind.
	ToolResult []byte
	Auth       *AuthChallenge
	Emails     []EmailSummary
	Action     *ActionRecord
}

// newMessage stamps an id and creation time onto m.
func newMessage(m Message) Message {
	m.ID = uuid.New().String()
	m.CreatedAt = time.Now()
	return m
}

// summaryFromBackend converts a wire email into the log's projection.
func summaryFromBackend(e backend.GmailEmail) EmailSummary {
	return EmailSummary{
		ID:       e.ID,
		From:     e.FromAddress,
		Subject:  e.Subject,
		Snippet:  e.Snippet,
		Date:     e.Date,
		ThreadID: e.ThreadID,
	}
}
