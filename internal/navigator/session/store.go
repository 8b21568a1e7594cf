// Package session tracks the call sessions owned by this process.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/tiger/ivr-autopilot/internal/navigator/stagemachine"
)

// Session binds one outbound call attempt to its stage machine.
type Session struct {
	CallID    string
	AttemptID string
	Machine   *stagemachine.Machine
	CreatedAt time.Time
}

// Store is the callID-indexed session table.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: map[string]*Session{}}
}

// Put registers a session. Exactly one session may exist per call.
func (s *Store) Put(sess *Session) error {
	if sess == nil || sess.CallID == "" {
		return fmt.Errorf("session with call_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.CallID]; ok {
		return fmt.Errorf("session already exists for call %s", sess.CallID)
	}
	s.sessions[sess.CallID] = sess
	return nil
}

// Get resolves a session by call identifier.
func (s *Store) Get(callID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[callID]
	return sess, ok
}

// Remove drops a concluded session.
func (s *Store) Remove(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, callID)
}

// Len reports the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
