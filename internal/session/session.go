// Package session holds the client-side authentication state: the
// bearer token and minimal identity fields, persisted in the system
// keyring. The orchestration core treats an absent token as an
// unrecoverable precondition and reports it through OnUnauthenticated
// rather than navigating anywhere itself.
package session

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "mailpilot"

const (
	keyToken     = "access-token"
	keyUserEmail = "user-email"
	keyUserName  = "user-name"
)

// ErrNoSession indicates no token is stored.
var ErrNoSession = errors.New("no stored session")

// Store persists session state. Implementations must tolerate absent
// keys by returning ErrNoSession from Token.
type Store interface {
	Token() (string, error)
	SetToken(token string) error
	Identity() (email, name string)
	SetIdentity(email, name string) error
	Clear() error
}

// Session couples a store with the host's reaction to a dead session.
type Session struct {
	Store

	// OnUnauthenticated is invoked by the orchestrator after an
	// unauthorized failure has been surfaced in the conversation.
	OnUnauthenticated func()
}

// New wraps a store into a Session.
func New(store Store) *Session {
	return &Session{Store: store}
}

// Authenticated reports whether a token is stored.
func (s *Session) Authenticated() bool {
	tok, err := s.Token()
	return err == nil && tok != ""
}

// KeyringStore persists the session in the system keyring, falling back
// to an encrypted file backend where no native keychain exists.
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyring opens the mailpilot keyring.
func OpenKeyring() (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailpilot/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailpilot-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &KeyringStore{ring: ring}, nil
}

// Token returns the stored bearer token.
func (k *KeyringStore) Token() (string, error) {
	item, err := k.ring.Get(keyToken)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("reading token: %w", err)
	}
	return string(item.Data), nil
}

// SetToken stores the bearer token.
func (k *KeyringStore) SetToken(token string) error {
	err := k.ring.Set(keyring.Item{Key: keyToken, Data: []byte(token)})
	if err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

// Identity returns the stored user email and display name. Missing
// values come back empty.
func (k *KeyringStore) Identity() (string, string) {
	var email, name string
	if item, err := k.ring.Get(keyUserEmail); err == nil {
		email = string(item.Data)
	}
	if item, err := k.ring.Get(keyUserName); err == nil {
		name = string(item.Data)
	}
	return email, name
}

// SetIdentity stores the user email and display name.
func (k *KeyringStore) SetIdentity(email, name string) error {
	if err := k.ring.Set(keyring.Item{Key: keyUserEmail, Data: []byte(email)}); err != nil {
		return fmt.Errorf("storing user email: %w", err)
	}
	if err := k.ring.Set(keyring.Item{Key: keyUserName, Data: []byte(name)}); err != nil {
		return fmt.Errorf("storing user name: %w", err)
	}
	return nil
}

// Clear removes all session keys.
func (k *KeyringStore) Clear() error {
	for _, key := range []string{keyToken, keyUserEmail, keyUserName} {
		if err := k.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("removing %s: %w", key, err)
		}
	}
	return nil
}

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	token string
	email string
	name  string
}

func (m *MemoryStore) Token() (string, error) {
	if m.token == "" {
		return "", ErrNoSession
	}
	return m.token, nil
}

func (m *MemoryStore) SetToken(token string) error {
	m.token = token
	return nil
}

func (m *MemoryStore) Identity() (string, string) {
	return m.email, m.name
}

func (m *MemoryStore) SetIdentity(email, name string) error {
	m.email = email
	m.name = name
	return nil
}

func (m *MemoryStore) Clear() error {
	m.token, m.email, m.name = "", "", ""
	return nil
}
