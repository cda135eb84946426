package checkpoint

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps checkpoints in a map for the life of the process. It is
// the last entry of every backend ranking and cannot fail to open.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
	closed bool
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Get implements [Store.Get].
func (s *MemoryStore) Get(_ context.Context, key Key) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return State{}, false, ErrClosed
	}
	st, ok := s.states[key.String()]
	if !ok {
		return State{}, false, nil
	}
	return st.Clone(), true, nil
}

// Put implements [Store.Put].
func (s *MemoryStore) Put(_ context.Context, key Key, state State) error {
	st := state.Clone()
	st.Key = key
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.states[key.String()] = st
	return nil
}

// Ping implements [Store.Ping].
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Len returns the number of stored conversations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Close implements [Store.Close].
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.states = nil
	return nil
}

// Name implements [Store.Name].
func (s *MemoryStore) Name() string { return "memory" }
