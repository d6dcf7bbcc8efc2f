package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dhowell/mailpilot/internal/history"
	"github.com/dhowell/mailpilot/tests/testutil"
)

func TestRecordAndGet(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id, err := s.RecordSend(ctx, "alice@example.com", "hello", "hello there", "srv-1")
	if err != nil {
		t.Fatalf("RecordSend: %v", err)
	}
	if id == "" {
		t.Fatal("expected a reference id")
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Recipient != "alice@example.com" || rec.Subject != "hello" {
		t.Errorf("record fields lost: %+v", rec)
	}
	if rec.EmailID != "srv-1" {
		t.Errorf("backend email id lost: %q", rec.EmailID)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected a creation time")
	}
}

func TestGetMissing(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, subject := range []string{"first", "second", "third"} {
		if _, err := s.RecordSend(ctx, "a@b.com", subject, "", ""); err != nil {
			t.Fatalf("RecordSend: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	recs, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Subject != "third" || recs[1].Subject != "second" {
		t.Errorf("records out of order: %q, %q", recs[0].Subject, recs[1].Subject)
	}
}
