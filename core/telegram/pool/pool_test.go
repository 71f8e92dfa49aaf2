package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stater/core/telegram/state"
)

func TestSameKeyRunsInOrder(t *testing.T) {
	p := New(Options{Workers: 4, QueueSize: 4})
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, p.Submit(context.Background(), state.ChatKey(7), "seq", func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}))
	}
	p.Close()

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, uint64(50), p.Completed())
}

func TestDifferentKeysRunConcurrently(t *testing.T) {
	p := New(Options{Workers: 8, QueueSize: 1})
	defer p.Close()

	// find two keys on different shards
	a := state.ChatKey(1)
	b := state.ChatKey(2)
	for id := int64(2); a.Shard(8) == b.Shard(8); id++ {
		b = state.ChatKey(id)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), a, "block", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), b, "free", func(context.Context) error {
		close(done)
		return nil
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job for another key was blocked")
	}
	close(release)
}

func TestFailuresAndPanicsAreCounted(t *testing.T) {
	p := New(Options{Workers: 1})
	require.NoError(t, p.Submit(context.Background(), state.ChatKey(1), "fail", func(context.Context) error { return errors.New("x") }))
	require.NoError(t, p.Submit(context.Background(), state.ChatKey(1), "panic", func(context.Context) error { panic("y") }))
	require.NoError(t, p.Submit(context.Background(), state.ChatKey(1), "ok", func(context.Context) error { return nil }))
	p.Close()

	assert.Equal(t, uint64(3), p.Completed())
	assert.Equal(t, uint64(2), p.ErrorCount())
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(Options{})
	p.Close()
	p.Close()
	err := p.Submit(context.Background(), state.ChatKey(1), "late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	err = p.TrySubmit(context.Background(), state.ChatKey(1), "late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTrySubmitReportsFullQueue(t *testing.T) {
	p := New(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	key := state.ChatKey(5)
	require.NoError(t, p.Submit(context.Background(), key, "block", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, p.TrySubmit(context.Background(), key, "queued", func(context.Context) error { return nil }))
	assert.ErrorIs(t, p.TrySubmit(context.Background(), key, "overflow", func(context.Context) error { return nil }), ErrQueueFull)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, key, "wait", func(context.Context) error { return nil }), context.DeadlineExceeded)

	close(release)
	p.Close()
}
