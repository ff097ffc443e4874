// Package storage keeps the live sessions served over HTTP.
package storage

import (
	"sync"
	"time"

	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/geo"
	"github.com/autopark-gthost/odocheck/internal/host"
	"github.com/autopark-gthost/odocheck/internal/session"
)

// Session is a controller plus the adapters the browser feeds.
type Session struct {
	ID         string
	Controller *session.Controller
	Camera     *camera.PushSource
	Location   *geo.ReportedLocation
	Host       *host.Recorder
	CreatedAt  time.Time
}

type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

func (s *SessionStore) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, exists := s.sessions[sessionID]
	return sess, exists
}

func (s *SessionStore) Set(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) Delete(sessionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return sess, exists
}

// Prune drops sessions created before cutoff, abandoning those still open.
// It returns how many were removed.
func (s *SessionStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	var stale []*Session
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		if !sess.Controller.Snapshot().Closed {
			sess.Controller.Abandon()
		}
	}
	return len(stale)
}
