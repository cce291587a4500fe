// Package session implements a per-session bounded conversation
// buffer, the ground truth for affirmative follow-up disambiguation.
package session

import (
	"sync"
	"time"

	fame "github.com/fame-ai/orchestrator"
)

// Store is the contract the Orchestrator and Intent Router depend on.
// Implementations MUST be safe for concurrent use across sessions.
// MemoryStore locks each session independently of every other session;
// RedisStore serializes Append through one mutex for all sessions.
type Store interface {
	Append(sessionID string, turn fame.Turn)
	Recent(sessionID string, k int) []fame.Turn
	Clear(sessionID string)
	Reap(now time.Time)
}

// sessionState is one session's mutable state, locked independently
// of every other session.
type sessionState struct {
	mu           sync.Mutex
	turns        []fame.Turn
	lastActivity time.Time
}

// MemoryStore is the in-memory reference implementation: a map from
// session id to a bounded turn slice, capacity nTurns (default 5,
// FAME_SESSION_TURNS). No persistence; implementations wanting
// durability wrap or replace this with RedisStore.
type MemoryStore struct {
	mapMu       sync.RWMutex
	sessions    map[string]*sessionState
	nTurns      int
	idleTimeout time.Duration
}

// NewMemoryStore builds a store bounding every session to nTurns
// turns, reaping sessions idle past idleTimeout.
func NewMemoryStore(nTurns int, idleTimeout time.Duration) *MemoryStore {
	if nTurns <= 0 {
		nTurns = 5
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &MemoryStore{
		sessions:    make(map[string]*sessionState),
		nTurns:      nTurns,
		idleTimeout: idleTimeout,
	}
}

func (s *MemoryStore) sessionFor(id string) *sessionState {
	s.mapMu.RLock()
	st, ok := s.sessions[id]
	s.mapMu.RUnlock()
	if ok {
		return st
	}

	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	if st, ok := s.sessions[id]; ok {
		return st
	}
	st = &sessionState{lastActivity: time.Now()}
	s.sessions[id] = st
	return st
}

// Append adds turn to sessionID's buffer, evicting the oldest turn
// FIFO once the buffer reaches capacity. The buffer never exceeds
// nTurns entries and turns stay ordered by timestamp.
func (s *MemoryStore) Append(sessionID string, turn fame.Turn) {
	st := s.sessionFor(sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	st.turns = append(st.turns, turn)
	if len(st.turns) > s.nTurns {
		st.turns = st.turns[len(st.turns)-s.nTurns:]
	}
	st.lastActivity = time.Now()
}

// Recent returns up to the last k turns for sessionID, oldest first.
func (s *MemoryStore) Recent(sessionID string, k int) []fame.Turn {
	s.mapMu.RLock()
	st, ok := s.sessions[sessionID]
	s.mapMu.RUnlock()
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if k <= 0 || k > len(st.turns) {
		k = len(st.turns)
	}
	out := make([]fame.Turn, k)
	copy(out, st.turns[len(st.turns)-k:])
	return out
}

// Clear empties sessionID's buffer without removing the session
// itself (it still counts for idle reaping purposes).
func (s *MemoryStore) Clear(sessionID string) {
	s.mapMu.RLock()
	st, ok := s.sessions[sessionID]
	s.mapMu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.turns = nil
	st.mu.Unlock()
}

// Reap drops sessions whose lastActivity is older than idleTimeout
// relative to now.
func (s *MemoryStore) Reap(now time.Time) {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	for id, st := range s.sessions {
		st.mu.Lock()
		idle := now.Sub(st.lastActivity)
		st.mu.Unlock()
		if idle > s.idleTimeout {
			delete(s.sessions, id)
		}
	}
}

// LastAssistantTurn returns the most recent assistant turn in
// sessionID, if any — used by the router's affirmative follow-up
// guard.
func (s *MemoryStore) LastAssistantTurn(sessionID string) (fame.Turn, bool) {
	turns := s.Recent(sessionID, s.nTurns)
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == fame.RoleAssistant {
			return turns[i], true
		}
	}
	return fame.Turn{}, false
}
