package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stater/core/telegram/events"
	tghelpers "github.com/m3rciful/stater/core/telegram/helpers"
	"github.com/m3rciful/stater/core/telegram/state"
)

const lockStripes = 64

// Handler processes one classified update.
type Handler func(ctx context.Context, upd tele.Update, c events.Classification) error

// Middleware wraps the delivery of every update. The first registered is the outermost.
type Middleware func(next Handler) Handler

// Delivery is a classified update ready to run.
type Delivery struct {
	Key            state.Key
	UpdateID       int
	Classification events.Classification
	// Run delivers every event of the update to its listener, holding the key's lock.
	Run func(ctx context.Context) error
}

// Mux is the in-process Transport: it classifies updates and calls the listener of each
// event in fan-out order. Deliveries for one key never overlap.
type Mux[A any] struct {
	api        A
	classifier events.Classifier

	mu          sync.RWMutex
	listeners   map[Endpoint]Listener[A]
	middlewares []Middleware

	locks [lockStripes]sync.Mutex
}

// NewMux creates a Mux handing api to every listener.
func NewMux[A any](api A, classifier events.Classifier) *Mux[A] {
	return &Mux[A]{
		api:        api,
		classifier: classifier,
		listeners:  make(map[Endpoint]Listener[A]),
	}
}

// Use appends middlewares to the delivery chain.
func (m *Mux[A]) Use(mws ...Middleware) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mw := range mws {
		if mw != nil {
			m.middlewares = append(m.middlewares, mw)
		}
	}
}

// Listen registers l for ep. Each endpoint accepts one listener.
func (m *Mux[A]) Listen(ep Endpoint, l Listener[A]) error {
	if l == nil {
		return fmt.Errorf("mux: nil listener for %s", ep)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.listeners[ep]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, ep)
	}
	m.listeners[ep] = l
	return nil
}

// Endpoints lists the registered endpoints, kinds first, then commands by name.
func (m *Mux[A]) Endpoints() []Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Endpoint, 0, len(m.listeners))
	for ep := range m.listeners {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Command < out[j].Command
	})
	return out
}

// Prepare classifies upd. Malformed and unsupported updates are logged as dropped.
func (m *Mux[A]) Prepare(upd tele.Update) (Delivery, error) {
	c, err := m.classifier.Classify(upd)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, events.ErrUnsupportedUpdate) {
			reason = "unsupported"
		}
		ctx := tghelpers.BuildContext(context.Background(), upd, state.Key{})
		logEventDropped(ctx, Endpoint{}, state.Key{}, reason, err)
		return Delivery{}, err
	}
	return Delivery{
		Key:            c.Key,
		UpdateID:       upd.ID,
		Classification: c,
		Run: func(ctx context.Context) error {
			return m.run(ctx, upd, c)
		},
	}, nil
}

// Deliver classifies and runs upd on the calling goroutine.
func (m *Mux[A]) Deliver(ctx context.Context, upd tele.Update) error {
	d, err := m.Prepare(upd)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func (m *Mux[A]) run(ctx context.Context, upd tele.Update, c events.Classification) error {
	ctx = tghelpers.BuildContext(ctx, upd, c.Key)

	lock := &m.locks[c.Key.Shard(lockStripes)]
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	h := Handler(m.route)
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		h = m.middlewares[i](h)
	}
	m.mu.RUnlock()

	return h(ctx, upd, c)
}

func (m *Mux[A]) route(ctx context.Context, _ tele.Update, c events.Classification) error {
	var errs []error
	for _, e := range c.Entries {
		l, ok := m.listener(Endpoint{Kind: e.Kind, Command: e.Command})
		if !ok && e.Kind == events.KindCommand {
			l, ok = m.listener(Endpoint{Kind: events.KindUnknownCommand})
		}
		if !ok {
			continue
		}
		if err := l(ctx, m.api, c.Key, e.Payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mux[A]) listener(ep Endpoint) (Listener[A], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listeners[ep]
	return l, ok
}
