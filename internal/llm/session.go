package llm

import (
	"sync"

	"sorcerer/internal/core/model"

	"github.com/google/uuid"
)

// SessionStore holds the accumulated turns of every conversation, keyed by
// session id. T is the provider's message type.
type SessionStore[T any] struct {
	mu    sync.Mutex
	turns map[model.SessionID][]T
}

func NewSessionStore[T any]() *SessionStore[T] {
	return &SessionStore[T]{turns: make(map[model.SessionID][]T)}
}

// New opens an empty session.
func (s *SessionStore[T]) New() model.SessionID {
	id := model.SessionID(uuid.NewString())
	s.mu.Lock()
	s.turns[id] = nil
	s.mu.Unlock()
	return id
}

// Turns returns a copy of the session's history. Unknown sessions are empty.
func (s *SessionStore[T]) Turns(id model.SessionID) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.turns[id]...)
}

// Set replaces the session's history.
func (s *SessionStore[T]) Set(id model.SessionID, turns []T) {
	s.mu.Lock()
	s.turns[id] = append([]T(nil), turns...)
	s.mu.Unlock()
}

func (s *SessionStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
