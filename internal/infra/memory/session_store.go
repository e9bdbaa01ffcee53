package memory

import (
	"context"
	"sync"
)

// SessionStore is an in-memory implementation of app.EnvelopeStore.
type SessionStore struct {
	mu        sync.RWMutex
	envelopes map[string][]byte
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		envelopes: make(map[string][]byte),
	}
}

func (s *SessionStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.envelopes[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

func (s *SessionStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes[key] = append([]byte(nil), value...)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.envelopes, key)
	return nil
}

// Len reports how many envelopes are stored.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.envelopes)
}
