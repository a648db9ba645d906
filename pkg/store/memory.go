package store

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory store for hosts that want no persistence.
// State survives for the life of the process only.
type MemStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]State)}
}

func (s *MemStore) Load(codeID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[codeID]
	if !ok {
		return Fresh(), fmt.Errorf("store: no state for %s", codeID)
	}
	return st, nil
}

func (s *MemStore) Save(codeID string, st State) error {
	st.Version = CurrentVersion
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[codeID] = st
	return nil
}
