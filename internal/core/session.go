package core

import (
	"sort"
	"sync"
	"time"
)

// Session is the per-user continuity record that survives socket reconnects.
type Session struct {
	UserID       string
	AreaKey      string
	JoinTime     time.Time
	LastActivity time.Time
}

// SessionRegistry holds at most one session per user id.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Upsert creates a session or refreshes an existing one. The original join time
// of an existing session is preserved.
func (s *SessionRegistry) Upsert(userID, areaKey string, now time.Time) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, JoinTime: now}
		s.sessions[userID] = sess
	}
	sess.AreaKey = areaKey
	sess.LastActivity = now
	return *sess
}

// Touch refreshes the last activity time. Returns false if the user has no session.
func (s *SessionRegistry) Touch(userID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	sess.LastActivity = now
	return true
}

// Get returns a copy of the user's session.
func (s *SessionRegistry) Get(userID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Evict removes the user's session. Returns true if one existed.
func (s *SessionRegistry) Evict(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[userID]; !ok {
		return false
	}
	delete(s.sessions, userID)
	return true
}

// Count returns the number of sessions.
func (s *SessionRegistry) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Snapshot returns copies of all sessions ordered by user id.
func (s *SessionRegistry) Snapshot() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
