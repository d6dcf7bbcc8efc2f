package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/dhowell/mailpilot/internal/backend"
)

// AllArchivedText replaces a list message's summary once every email in
// it has been archived.
const AllArchivedText = "All emails archived."

// Log is the ordered conversation record and the single source of truth
// the UI renders. Appends from a conversational turn keep their relative
// order; appends from the authorization flow land wherever that flow
// resolves. All mutations operate on the live slice under the mutex so
// interleaved completions never clobber each other.
type Log struct {
	mu      sync.Mutex
	msgs    []Message
	changed chan struct{}
}

// NewLog creates an empty conversation log.
func NewLog() *Log {
	return &Log{changed: make(chan struct{}, 1)}
}

// Changed returns a channel that coalesces change notifications. The UI
// waits on it and re-renders from a fresh snapshot.
func (l *Log) Changed() <-chan struct{} {
	return l.changed
}

func (l *Log) notify() {
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

// Append adds a message to the end of the log, stamping its id and
// creation time, and returns the stored copy.
func (l *Log) Append(m Message) Message {
	m = newMessage(m)

	l.mu.Lock()
	l.msgs = append(l.msgs, m)
	l.mu.Unlock()

	l.notify()
	return m
}

// AppendText is shorthand for appending a plain text message.
func (l *Log) AppendText(origin Origin, text string) Message {
	return l.Append(Message{Text: text, Origin: origin, Kind: KindPlain})
}

// Remove deletes the message with the given id. Only status messages
// are ever removed; the caller owns that discipline.
func (l *Log) Remove(id string) {
	l.mu.Lock()
	for i, m := range l.msgs {
		if m.ID == id {
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	l.notify()
}

// Messages returns a copy of the log in display order. Email lists in
// the copy stay valid across later mutations: RemoveEmail replaces a
// message's list instead of compacting it.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of messages currently in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// HasStatus reports whether any transient status message is live.
func (l *Log) HasStatus() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m.Kind == KindStatus {
			return true
		}
	}
	return false
}

// Projection converts the log into the wire shape the tool-chat
// endpoint expects, preserving order. Status messages are skipped: they
// are retry bookkeeping, not conversation.
func (l *Log) Projection() []backend.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]backend.ChatMessage, 0, len(l.msgs))
	for _, m := range l.msgs {
		if m.Kind == KindStatus {
			continue
		}
		out = append(out, backend.ChatMessage{
			Text:   m.Text,
			IsUser: m.Origin == OriginUser,
			Time:   m.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

// HasEmail reports whether the list message with messageID still holds
// the email with emailID.
func (l *Log) HasEmail(messageID, emailID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.msgs {
		if m.ID != messageID || m.Kind != KindList {
			continue
		}
		for _, e := range m.Emails {
			if e.ID == emailID {
				return true
			}
		}
		return false
	}
	return false
}

// RemoveEmail removes the email with emailID from the list message with
// messageID and recomputes that message's summary text. Other entries
// are untouched even if they hold the same email id. Removing an id
// that is already absent is a no-op. It reports whether the email was
// present.
//
// The new email list is built in a fresh slice, never compacted in
// place: snapshots handed out by Messages share the old backing array,
// and the UI goroutine may still be reading it.
func (l *Log) RemoveEmail(messageID, emailID string) bool {
	l.mu.Lock()
	removed := false
	for i := range l.msgs {
		m := &l.msgs[i]
		if m.ID != messageID || m.Kind != KindList {
			continue
		}
		for j, e := range m.Emails {
			if e.ID == emailID {
				next := make([]EmailSummary, 0, len(m.Emails)-1)
				next = append(next, m.Emails[:j]...)
				next = append(next, m.Emails[j+1:]...)
				m.Emails = next
				m.Text = listSummary(len(m.Emails))
				removed = true
				break
			}
		}
		break
	}
	l.mu.Unlock()

	if removed {
		l.notify()
	}
	return removed
}

// listSummary renders the count-based summary line for a list message.
func listSummary(n int) string {
	switch n {
	case 0:
		return AllArchivedText
	case 1:
		return "1 email in your inbox:"
	default:
		return fmt.Sprintf("%d emails in your inbox:", n)
	}
}
