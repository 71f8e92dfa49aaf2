package state

import (
	"context"
	"sync"
)

// Memory is an in-process Store backed by a map.
type Memory[S any] struct {
	mu     sync.RWMutex
	states map[Key]S
}

// NewMemory constructs an empty in-memory store.
func NewMemory[S any]() *Memory[S] {
	return &Memory[S]{states: make(map[Key]S)}
}

// Lookup returns the state stored for key, if any.
func (m *Memory[S]) Lookup(_ context.Context, key Key) (S, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[key]
	return s, ok, nil
}

// Put replaces the state for key.
func (m *Memory[S]) Put(_ context.Context, key Key, s S) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = s
	return s, nil
}

// Erase removes the state for key.
func (m *Memory[S]) Erase(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}

// Len returns the number of conversations holding a state.
func (m *Memory[S]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
