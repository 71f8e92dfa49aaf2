package lrustore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stater/core/telegram/state"
)

type countingStore struct {
	*state.Memory[string]
	lookups int
	failPut error
}

func (c *countingStore) Lookup(ctx context.Context, key state.Key) (string, bool, error) {
	c.lookups++
	return c.Memory.Lookup(ctx, key)
}

func (c *countingStore) Put(ctx context.Context, key state.Key, s string) (string, error) {
	if c.failPut != nil {
		return "", c.failPut
	}
	return c.Memory.Put(ctx, key, s)
}

func TestLookupCachesPresentAndAbsent(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Memory: state.NewMemory[string]()}
	s, err := New[string](backend, 8)
	require.NoError(t, err)

	_, ok, err := s.Lookup(ctx, state.ChatKey(1))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = s.Lookup(ctx, state.ChatKey(1))
	assert.False(t, ok)
	assert.Equal(t, 1, backend.lookups)

	_, err = s.Put(ctx, state.ChatKey(1), "asking")
	require.NoError(t, err)
	got, ok, err := s.Lookup(ctx, state.ChatKey(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "asking", got)
	assert.Equal(t, 1, backend.lookups)
}

func TestEraseInvalidates(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Memory: state.NewMemory[string]()}
	s, err := New[string](backend, 8)
	require.NoError(t, err)

	_, err = s.Put(ctx, state.ChatKey(2), "x")
	require.NoError(t, err)
	require.NoError(t, s.Erase(ctx, state.ChatKey(2)))
	assert.Equal(t, 0, s.Len())

	_, ok, err := s.Lookup(ctx, state.ChatKey(2))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, backend.Memory.Len())
}

func TestFailedPutDropsCachedEntry(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Memory: state.NewMemory[string]()}
	s, err := New[string](backend, 8)
	require.NoError(t, err)

	_, err = s.Put(ctx, state.ChatKey(3), "old")
	require.NoError(t, err)
	backend.failPut = errors.New("disk full")
	_, err = s.Put(ctx, state.ChatKey(3), "new")
	require.Error(t, err)

	got, ok, err := s.Lookup(ctx, state.ChatKey(3))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "old", got)
	assert.Equal(t, 1, backend.lookups)
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New[string](state.NewMemory[string](), 0)
	assert.Error(t, err)
}
