// internal/auth/sessions.go
package auth

import (
	"encoding/json"
	"sync"
	"time"

	"copilot-metrics-service/internal/model"
)

// Session holds one authenticated user's credential for the lifetime of the
// session: the bearer token, the identity used for commit attribution, and
// the raw profile payload. The token never leaves the process.
type Session struct {
	Token    string
	Identity model.Identity
	User     json.RawMessage

	expiresAt time.Time
}

// Sessions is an in-memory session registry keyed by random IDs. Expired
// sessions are dropped lazily on lookup and swept on creation.
type Sessions struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
}

// NewSessions creates a session registry with the given time-to-live.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session and returns its ID.
func (s *Sessions) Create(token string, identity model.Identity, user json.RawMessage) (string, error) {
	id, err := RandomID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for sid, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, sid)
		}
	}
	s.sessions[id] = &Session{
		Token:     token,
		Identity:  identity,
		User:      user,
		expiresAt: now.Add(s.ttl),
	}
	return id, nil
}

// Get looks up a session by ID, dropping it when expired.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

// Delete removes a session. Deleting an unknown ID is a no-op.
func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}
