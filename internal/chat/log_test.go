package chat

import (
	"testing"
)

func listMessage(l *Log, ids ...string) Message {
	emails := make([]EmailSummary, 0, len(ids))
	for _, id := range ids {
		emails = append(emails, EmailSummary{ID: id, Subject: "s-" + id})
	}
	return l.Append(Message{
		Origin: OriginAssistant,
		Kind:   KindList,
		Text:   listSummary(len(emails)),
		Emails: emails,
	})
}

func TestAppendStampsAndOrders(t *testing.T) {
	l := NewLog()

	first := l.AppendText(OriginUser, "hello")
	second := l.AppendText(OriginAssistant, "hi there")

	if first.ID == "" || second.ID == "" {
		t.Fatal("expected appended messages to get ids")
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct ids")
	}

	msgs := l.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "hello" || msgs[1].Text != "hi there" {
		t.Fatalf("messages out of order: %q, %q", msgs[0].Text, msgs[1].Text)
	}
}

func TestProjectionSkipsStatusMessages(t *testing.T) {
	l := NewLog()
	l.AppendText(OriginUser, "check my inbox")
	l.Append(Message{Origin: OriginAssistant, Kind: KindStatus, Text: "Connection timed out. Retrying (1/2)..."})
	l.AppendText(OriginAssistant, "done")

	proj := l.Projection()
	if len(proj) != 2 {
		t.Fatalf("expected 2 projected messages, got %d", len(proj))
	}
	if !proj[0].IsUser {
		t.Error("first projected message should be attributed to the user")
	}
	if proj[1].IsUser {
		t.Error("second projected message should be attributed to the assistant")
	}
	if proj[0].Time == "" {
		t.Error("projected message should carry a timestamp")
	}
}

func TestRemoveEmailRecomputesSummary(t *testing.T) {
	l := NewLog()
	msg := listMessage(l, "a", "b", "c")

	if !l.RemoveEmail(msg.ID, "b") {
		t.Fatal("expected removal of present email to report true")
	}
	got := l.Messages()[0]
	if len(got.Emails) != 2 {
		t.Fatalf("expected 2 emails left, got %d", len(got.Emails))
	}
	if got.Text != "2 emails in your inbox:" {
		t.Fatalf("unexpected summary: %q", got.Text)
	}

	l.RemoveEmail(msg.ID, "a")
	if got := l.Messages()[0]; got.Text != "1 email in your inbox:" {
		t.Fatalf("unexpected summary: %q", got.Text)
	}

	l.RemoveEmail(msg.ID, "c")
	got = l.Messages()[0]
	if got.Text != AllArchivedText {
		t.Fatalf("expected sentinel summary, got %q", got.Text)
	}
	if len(got.Emails) != 0 {
		t.Fatalf("expected empty list, got %d emails", len(got.Emails))
	}
}

func TestRemoveEmailLeavesSnapshotsIntact(t *testing.T) {
	l := NewLog()
	msg := listMessage(l, "a", "b", "c")

	before := l.Messages()[0]

	if !l.RemoveEmail(msg.ID, "a") {
		t.Fatal("expected removal of present email to report true")
	}

	if len(before.Emails) != 3 {
		t.Fatalf("earlier snapshot resized: %d emails", len(before.Emails))
	}
	for i, want := range []string{"a", "b", "c"} {
		if before.Emails[i].ID != want {
			t.Errorf("earlier snapshot corrupted at %d: got %q, want %q", i, before.Emails[i].ID, want)
		}
	}

	after := l.Messages()[0]
	if len(after.Emails) != 2 || after.Emails[0].ID != "b" || after.Emails[1].ID != "c" {
		t.Fatalf("unexpected list after removal: %+v", after.Emails)
	}
}

func TestRemoveEmailAbsentIsNoop(t *testing.T) {
	l := NewLog()
	msg := listMessage(l, "a")

	if l.RemoveEmail(msg.ID, "zzz") {
		t.Fatal("expected removal of absent email to report false")
	}
	got := l.Messages()[0]
	if len(got.Emails) != 1 || got.Text != "1 email in your inbox:" {
		t.Fatalf("message mutated by no-op removal: %+v", got)
	}
}

func TestRemoveEmailOnlyTouchesNamedMessage(t *testing.T) {
	l := NewLog()
	older := listMessage(l, "x", "y")
	newer := listMessage(l, "x", "y")

	l.RemoveEmail(newer.ID, "x")

	msgs := l.Messages()
	if len(msgs[0].Emails) != 2 {
		t.Errorf("older message mutated: %d emails", len(msgs[0].Emails))
	}
	if len(msgs[1].Emails) != 1 {
		t.Errorf("newer message not mutated: %d emails", len(msgs[1].Emails))
	}
	if !l.HasEmail(older.ID, "x") {
		t.Error("older message should still hold the email")
	}
	if l.HasEmail(newer.ID, "x") {
		t.Error("newer message should no longer hold the email")
	}
}

func TestChangedCoalesces(t *testing.T) {
	l := NewLog()
	l.AppendText(OriginUser, "one")
	l.AppendText(OriginUser, "two")
	l.AppendText(OriginUser, "three")

	select {
	case <-l.Changed():
	default:
		t.Fatal("expected a pending change notification")
	}
	select {
	case <-l.Changed():
		t.Fatal("expected notifications to coalesce into one")
	default:
	}
}
