package app

import (
	"context"
	"fmt"

	"test-session-service/internal/domain"
)

// DefaultNamespace prefixes every persisted envelope key.
const DefaultNamespace = "mentaleto_session"

// EnvelopeStore abstracts where serialized session envelopes live (in-memory, Redis, etc).
type EnvelopeStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SessionKey identifies one persisted session. Two tokens for the same test
// never share a key.
type SessionKey struct {
	Namespace string
	TestID    string
	Token     string
}

func (k SessionKey) String() string {
	ns := k.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns + "_" + k.TestID + "_" + k.Token
}

// SessionStore persists one Session envelope per key.
type SessionStore struct {
	envelopes EnvelopeStore
}

func NewSessionStore(envelopes EnvelopeStore) *SessionStore {
	return &SessionStore{envelopes: envelopes}
}

// Load returns (nil, nil) when nothing is stored. Undecodable data yields
// (nil, error wrapping domain.ErrCorruptSession); callers start fresh.
func (s *SessionStore) Load(ctx context.Context, key SessionKey) (*domain.Session, error) {
	raw, ok, err := s.envelopes.Get(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	sess, err := domain.DecodeSession(raw)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Save encodes the full envelope before writing, so a failed encode never
// leaves a partial entry behind.
func (s *SessionStore) Save(ctx context.Context, key SessionKey, sess *domain.Session) error {
	raw, err := domain.EncodeSession(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.envelopes.Put(ctx, key.String(), raw); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the envelope.
func (s *SessionStore) Clear(ctx context.Context, key SessionKey) error {
	if err := s.envelopes.Delete(ctx, key.String()); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
