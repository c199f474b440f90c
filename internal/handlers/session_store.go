package handlers

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/khobz-app/checkout/internal/services"
)

const defaultSessionTTL = 2 * time.Hour

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("handlers: checkout session not found")

// SessionStore holds live checkout sessions in memory. Sessions idle past
// the TTL are dropped lazily on access.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	checkout  *services.Checkout
	touchedAt time.Time
}

// NewSessionStore builds a SessionStore.
func NewSessionStore(ttl time.Duration, now func() time.Time) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		ttl:      ttl,
		now:      now,
		sessions: make(map[string]*sessionEntry),
	}
}

// NewID issues a fresh session id.
func (s *SessionStore) NewID() string {
	return ulid.Make().String()
}

// Put registers a session under its id.
func (s *SessionStore) Put(checkout *services.Checkout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.sessions[checkout.ID()] = &sessionEntry{
		checkout:  checkout,
		touchedAt: s.now(),
	}
}

// Get returns the session for id, refreshing its idle timer.
func (s *SessionStore) Get(id string) (*services.Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	entry.touchedAt = s.now()
	return entry.checkout, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	return len(s.sessions)
}

func (s *SessionStore) purgeLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, entry := range s.sessions {
		if entry.touchedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
