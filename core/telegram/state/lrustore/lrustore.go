// Package lrustore wraps a state.Store with a bounded read-through, write-through cache.
package lrustore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/m3rciful/stater/core/telegram/state"
)

type entry[S any] struct {
	value   S
	present bool
}

// Store caches lookups of the wrapped backend, including absent keys.
// Writes go to the backend first and update the cache only on success.
type Store[S any] struct {
	next  state.Store[S]
	cache *lru.Cache[state.Key, entry[S]]
}

// New wraps next with a cache holding up to size conversations.
func New[S any](next state.Store[S], size int) (*Store[S], error) {
	cache, err := lru.New[state.Key, entry[S]](size)
	if err != nil {
		return nil, fmt.Errorf("lrustore: %w", err)
	}
	return &Store[S]{next: next, cache: cache}, nil
}

// Lookup serves from the cache and falls back to the backend on a miss.
func (s *Store[S]) Lookup(ctx context.Context, key state.Key) (S, bool, error) {
	if e, ok := s.cache.Get(key); ok {
		return e.value, e.present, nil
	}
	value, ok, err := s.next.Lookup(ctx, key)
	if err != nil {
		return value, false, err
	}
	s.cache.Add(key, entry[S]{value: value, present: ok})
	return value, ok, nil
}

// Put writes through to the backend.
func (s *Store[S]) Put(ctx context.Context, key state.Key, value S) (S, error) {
	stored, err := s.next.Put(ctx, key, value)
	if err != nil {
		s.cache.Remove(key)
		return stored, err
	}
	s.cache.Add(key, entry[S]{value: stored, present: true})
	return stored, nil
}

// Erase removes the state from the backend and the cache.
func (s *Store[S]) Erase(ctx context.Context, key state.Key) error {
	s.cache.Remove(key)
	return s.next.Erase(ctx, key)
}

// Len reports the number of cached keys.
func (s *Store[S]) Len() int { return s.cache.Len() }
