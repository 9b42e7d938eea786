// Package inmem provides an in-memory implementation of conversation.Store.
//
// Sessions are process-local: a restart loses every in-flight conversation
// and users begin again.
package inmem

import (
	"context"
	"errors"
	"sync"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/conversation"
)

type (
	// Store is an in-memory implementation of conversation.Store.
	// It is safe for concurrent use.
	Store struct {
		mu       sync.RWMutex
		sessions map[string]conversation.Session
	}
)

// New returns an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]conversation.Session)}
}

var _ conversation.Store = (*Store)(nil)

// Load implements conversation.Store.
func (s *Store) Load(_ context.Context, id string) (conversation.Session, error) {
	if id == "" {
		return conversation.Session{}, errors.New("session id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.sessions[id]
	if !ok {
		return conversation.Session{}, agenterr.NotFound("session", id)
	}
	return existing.Clone(), nil
}

// Save implements conversation.Store.
func (s *Store) Save(_ context.Context, sess conversation.Session) error {
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	if sess.CapabilityID == "" {
		return errors.New("capability id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Delete implements conversation.Store. Deleting an unknown id is not an
// error.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, including finalization
// markers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
