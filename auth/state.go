package auth

import (
	"sync"
	"time"
)

// maxStates caps the CSRF state store so a flood of authorize requests
// cannot exhaust memory. Past the cap, new flows are refused until entries
// expire.
const maxStates = 10000

// StateStore tracks pending OAuth CSRF states with a TTL. States are
// single-use: Consume removes on success.
type StateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
}

// NewStateStore returns an empty store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]time.Time)}
}

// must be called with mu held
func (s *StateStore) cleanExpiredLocked() {
	now := time.Now()
	for state, expiry := range s.states {
		if now.After(expiry) {
			delete(s.states, state)
		}
	}
}

// Add registers a state with the given lifetime. Returns false when the
// store is full even after expiring old entries.
func (s *StateStore) Add(state string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states)%100 == 0 || len(s.states) >= maxStates {
		s.cleanExpiredLocked()
	}
	if len(s.states) >= maxStates {
		return false
	}
	s.states[state] = time.Now().Add(ttl)
	return true
}

// Consume validates and removes a state. Returns false for unknown or
// expired states.
func (s *StateStore) Consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return time.Now().Before(expiry)
}
