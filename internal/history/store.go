// Package history persists sent-email records locally so that
// action-result messages can be resolved to their details later. The
// conversation itself is never persisted.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates no record exists for the given reference id.
var ErrNotFound = errors.New("sent email not found")

// SentEmail is one recorded send.
type SentEmail struct {
	ID        string    `db:"id"`
	Recipient string    `db:"recipient"`
	Subject   string    `db:"subject"`
	Preview   string    `db:"preview"`
	EmailID   string    `db:"email_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Store is a SQLite-backed sent-mail history.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the history database at dbPath, enables
// WAL mode, and runs any pending schema migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSend inserts a sent-email record and returns its reference id.
func (s *Store) RecordSend(
	ctx context.Context,
	recipient, subject, preview, emailID string,
) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sent_emails (id, recipient, subject, preview, email_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, recipient, subject, preview, emailID, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("recording sent email: %w", err)
	}
	return id, nil
}

// Get returns the record with the given reference id.
func (s *Store) Get(ctx context.Context, referenceID string) (*SentEmail, error) {
	var rec SentEmail
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM sent_emails WHERE id = ?", referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading sent email %s: %w", referenceID, err)
	}
	return &rec, nil
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]SentEmail, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []SentEmail
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM sent_emails ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing sent emails: %w", err)
	}
	return recs, nil
}
