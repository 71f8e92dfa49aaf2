package state

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrProxyReleased is returned by a Proxy used after its dispatch finished.
var ErrProxyReleased = errors.New("state: proxy used after dispatch")

// Proxy gives a handler access to the state of the conversation being dispatched.
// It is valid only while that dispatch runs.
type Proxy[S any] struct {
	key      Key
	store    Store[S]
	schema   *Schema[S]
	released atomic.Bool
}

// NewProxy binds store and key for one dispatch.
func NewProxy[S any](store Store[S], schema *Schema[S], key Key) *Proxy[S] {
	return &Proxy[S]{key: key, store: store, schema: schema}
}

// Key returns the conversation key the proxy is bound to.
func (p *Proxy[S]) Key() Key { return p.key }

// Get returns the current state, ok=false when the conversation has none.
func (p *Proxy[S]) Get(ctx context.Context) (S, bool, error) {
	if p.released.Load() {
		var zero S
		return zero, false, ErrProxyReleased
	}
	return p.store.Lookup(ctx, p.key)
}

// Put replaces the conversation state. Later handlers and events observe the new value.
func (p *Proxy[S]) Put(ctx context.Context, s S) (S, error) {
	var zero S
	if p.released.Load() {
		return zero, ErrProxyReleased
	}
	if p.schema != nil {
		if _, ok := p.schema.Of(s); !ok {
			return zero, fmt.Errorf("%w: %T", ErrUnknownVariant, s)
		}
	}
	return p.store.Put(ctx, p.key, s)
}

// Erase drops the conversation state.
func (p *Proxy[S]) Erase(ctx context.Context) error {
	if p.released.Load() {
		return ErrProxyReleased
	}
	return p.store.Erase(ctx, p.key)
}

// Release invalidates the proxy.
func (p *Proxy[S]) Release() { p.released.Store(true) }
