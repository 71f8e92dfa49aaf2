package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"

	"log/slog"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/events"
	"github.com/m3rciful/stater/core/telegram/state"
)

// handlerSet is the precomputed routing table of one endpoint.
type handlerSet[S, A, D any] struct {
	endpoint  Endpoint
	byVariant map[state.Variant][]*handler[S, A, D]
	noState   []*handler[S, A, D]
	anyState  []*handler[S, A, D]
}

func newHandlerSet[S, A, D any](ep Endpoint, hs []*handler[S, A, D]) *handlerSet[S, A, D] {
	set := &handlerSet[S, A, D]{
		endpoint:  ep,
		byVariant: make(map[state.Variant][]*handler[S, A, D]),
	}
	for _, h := range hs {
		switch h.filter {
		case filterNoState:
			set.noState = append(set.noState, h)
		case filterAnyState:
			set.anyState = append(set.anyState, h)
		case filterInState:
			set.byVariant[h.variant] = append(set.byVariant[h.variant], h)
		}
	}
	return set
}

// Router dispatches classified events to the handlers of a built Registry.
type Router[S, A, D any] struct {
	schema   *state.Schema[S]
	store    state.Store[S]
	deps     D
	sets     []*handlerSet[S, A, D]
	commands []CommandGroup
}

// Build freezes the registry and produces a Router over store. deps is handed to every
// handler that asks for it. Any rejected registration makes Build fail.
func (r *Registry[S, A, D]) Build(store state.Store[S], deps D) (*Router[S, A, D], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("router: %d invalid registrations: %w", len(r.errs), errors.Join(r.errs...))
	}
	if store == nil {
		return nil, errors.New("router: nil state store")
	}

	rt := &Router[S, A, D]{schema: r.schema, store: store, deps: deps}

	byKind := make(map[events.Kind][]*handler[S, A, D])
	var commandHandlers []*handler[S, A, D]
	for _, h := range r.handlers {
		if h.kind == events.KindCommand {
			commandHandlers = append(commandHandlers, h)
			continue
		}
		byKind[h.kind] = append(byKind[h.kind], h)
	}

	kinds := make([]events.Kind, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		rt.sets = append(rt.sets, newHandlerSet(Endpoint{Kind: k}, byKind[k]))
	}
	for _, g := range groupCommands(commandHandlers) {
		rt.sets = append(rt.sets, newHandlerSet(Endpoint{Kind: events.KindCommand, Command: g.Command}, g.handlers))
		rt.commands = append(rt.commands, g.CommandGroup)
	}

	logger.FSMWire.LogAttrs(context.Background(), slog.LevelInfo, "router.build",
		slog.String("status", "ok"),
		slog.Int("handlers", len(r.handlers)),
		slog.Int("endpoints", len(rt.sets)),
		slog.Int("commands", len(rt.commands)),
	)
	return rt, nil
}

// Endpoints lists the endpoints Setup will listen on.
func (r *Router[S, A, D]) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(r.sets))
	for _, set := range r.sets {
		out = append(out, set.endpoint)
	}
	return out
}

// AllowedUpdates returns the Bot API update types the registered handlers need.
func (r *Router[S, A, D]) AllowedUpdates() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range r.sets {
		name := set.endpoint.Kind.UpdateType()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Setup registers one listener per endpoint on t.
func (r *Router[S, A, D]) Setup(t Transport[A]) error {
	for _, set := range r.sets {
		set := set
		if err := t.Listen(set.endpoint, func(ctx context.Context, api A, key state.Key, payload any) error {
			return r.dispatch(ctx, set, api, key, payload)
		}); err != nil {
			return fmt.Errorf("router: listen %s: %w", set.endpoint, err)
		}
	}
	logger.FSMWire.LogAttrs(context.Background(), slog.LevelInfo, "router.setup",
		slog.String("status", "ok"),
		slog.Int("endpoints", len(r.sets)),
	)
	return nil
}

func (r *Router[S, A, D]) dispatch(ctx context.Context, set *handlerSet[S, A, D], api A, key state.Key, payload any) error {
	start := time.Now()
	if logger.TraceIDFrom(ctx) == "" {
		ctx = logger.WithTrace(ctx, uuid.NewString(), "")
	}
	summary := dispatchSummary{endpoint: set.endpoint, key: key}

	cur, present, err := r.store.Lookup(ctx, key)
	if err != nil {
		summary.status = "drop"
		summary.err = fmt.Errorf("state lookup: %w", err)
		logEventDropped(ctx, set.endpoint, key, "store_lookup", summary.err)
		return summary.err
	}

	proxy := state.NewProxy(r.store, r.schema, key)
	defer proxy.Release()

	var errs []error
	run := func(group string, hs []*handler[S, A, D]) {
		summary.selected += len(hs)
		gctx := logger.WithGroup(ctx, group, summary.state)
		invoked, err := r.runGroup(gctx, group, hs, cur, payload, api, proxy, key, summary.state)
		summary.invoked += invoked
		if err != nil {
			errs = append(errs, err)
		}
	}

	if present {
		if v, ok := r.schema.Of(cur); ok {
			summary.state = v.Name()
			run("state:"+v.Name(), set.byVariant[v])
		} else {
			summary.state = fmt.Sprintf("%T", cur)
			logger.Warn(ctx, "fsm", "state.unknown",
				slog.String("key", key.String()),
				slog.String("state", summary.state),
			)
		}
	} else {
		run("no_state", set.noState)
	}
	run("any_state", set.anyState)

	summary.err = errors.Join(errs...)
	summary.took = time.Since(start)
	logDispatchSummary(ctx, summary)
	return summary.err
}

// runGroup invokes hs in order and stops at the first error or panic.
func (r *Router[S, A, D]) runGroup(ctx context.Context, group string, hs []*handler[S, A, D], cur S, payload any, api A, proxy *state.Proxy[S], key state.Key, stateName string) (int, error) {
	for i, h := range hs {
		hctx := logger.WithHandler(ctx, h.name)
		if logger.ShouldSample("handler.run") {
			logger.Debug(hctx, "fsm", "handler.run",
				slog.String("key", key.String()),
				slog.String("state", stateName),
				slog.String("group", group),
				slog.String("handler", h.name),
			)
		}
		if err := r.invoke(hctx, h, group, cur, payload, api, proxy, key); err != nil {
			logHandlerFailure(hctx, err)
			return i + 1, err
		}
	}
	return len(hs), nil
}

func (r *Router[S, A, D]) invoke(ctx context.Context, h *handler[S, A, D], group string, cur S, payload any, api A, proxy *state.Proxy[S], key state.Key) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{
				Handler: h.name,
				Group:   group,
				Key:     key,
				Err:     fmt.Errorf("panic: %v\n%s", p, debug.Stack()),
				Panic:   p,
			}
		}
	}()
	if callErr := h.invoke(ctx, cur, payload, api, proxy, r.deps); callErr != nil {
		return &HandlerError{Handler: h.name, Group: group, Key: key, Err: callErr}
	}
	return nil
}
