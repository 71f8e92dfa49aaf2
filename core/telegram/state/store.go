package state

import "context"

// Store keeps the current state of every conversation.
//
// Lookup reports ok=false for an absent key and has no side effects. Put inserts or
// overwrites and returns the stored value. Erase of an absent key is a no-op.
// The router serializes calls per key; backends only need to be safe across keys.
type Store[S any] interface {
	Lookup(ctx context.Context, key Key) (S, bool, error)
	Put(ctx context.Context, key Key, s S) (S, error)
	Erase(ctx context.Context, key Key) error
}
