package session

import (
	"fmt"
	"sync"
)

// Store holds active call sessions keyed by call SID. Sessions live from
// call start until the supervisor evicts them after outcome recording.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*CallSession),
	}
}

// Create registers a new session. Creating a session for an already active
// call SID is an error.
func (st *Store) Create(callSID, fromNumber string) (*CallSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.sessions[callSID]; exists {
		return nil, fmt.Errorf("session already active for call %s", callSID)
	}
	s := New(callSID, fromNumber)
	st.sessions[callSID] = s
	return s, nil
}

func (st *Store) Get(callSID string) (*CallSession, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[callSID]
	return s, ok
}

// Evict removes a terminated session. Safe to call more than once.
func (st *Store) Evict(callSID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, callSID)
}

// Len returns the number of active sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
