package router

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"log/slog"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/events"
	"github.com/m3rciful/stater/core/telegram/state"
)

var commandRe = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

type filterMode int

const (
	filterNoState filterMode = iota
	filterAnyState
	filterInState
)

func (f filterMode) String() string {
	switch f {
	case filterNoState:
		return "no_state"
	case filterAnyState:
		return "any_state"
	default:
		return "in_state"
	}
}

type handler[S, A, D any] struct {
	name        string
	shape       string
	kind        events.Kind
	command     string
	description string
	hidden      bool
	filter      filterMode
	variant     state.Variant
	invoke      invoker[S, A, D]
}

func (h *handler[S, A, D]) group() string {
	if h.filter == filterInState {
		return "state:" + h.variant.Name()
	}
	return h.filter.String()
}

type handlerOptions struct {
	name        string
	description string
	hidden      bool
}

// Option customizes one registration.
type Option func(*handlerOptions)

// Name sets the diagnostic name used in logs; it defaults to the function symbol.
func Name(name string) Option {
	return func(o *handlerOptions) { o.name = strings.TrimSpace(name) }
}

// Describe sets the command menu description of a command handler.
func Describe(description string) Option {
	return func(o *handlerOptions) { o.description = strings.TrimSpace(description) }
}

// Hidden keeps a command out of the bot command menu.
func Hidden() Option {
	return func(o *handlerOptions) { o.hidden = true }
}

// Registry collects handler registrations for a bot with state type S, bot API handle A
// and dependency bundle D. It is frozen by Build.
type Registry[S, A, D any] struct {
	schema *state.Schema[S]

	mu       sync.Mutex
	frozen   bool
	handlers []*handler[S, A, D]
	errs     []error
}

// NewRegistry creates an empty registry for states declared by schema.
func NewRegistry[S, A, D any](schema *state.Schema[S]) *Registry[S, A, D] {
	return &Registry[S, A, D]{schema: schema}
}

// Schema returns the state schema the registry was created with.
func (r *Registry[S, A, D]) Schema() *state.Schema[S] { return r.schema }

// Len returns the number of accepted registrations.
func (r *Registry[S, A, D]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Err returns every rejected registration joined, or nil.
func (r *Registry[S, A, D]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

// OnNoState registers fn for ev, run only when the conversation has no state.
func OnNoState[P, S, A, D any](reg *Registry[S, A, D], ev events.Event[P], fn any, opts ...Option) error {
	inv, sh, err := negotiate[struct{}, P, S, A, D](fn, false)
	return reg.add(ev, fn, filterNoState, state.Variant{}, inv, sh, err, opts)
}

// OnAnyState registers fn for ev, run for every event after the stateful or no-state group.
func OnAnyState[P, S, A, D any](reg *Registry[S, A, D], ev events.Event[P], fn any, opts ...Option) error {
	inv, sh, err := negotiate[struct{}, P, S, A, D](fn, false)
	return reg.add(ev, fn, filterAnyState, state.Variant{}, inv, sh, err, opts)
}

// OnState registers fn for ev, run only while the conversation is in variant V.
// fn may take the current V value right after the context.
//
// The stateful group is chosen once per event from the state read before any handler
// runs. A handler that moves the conversation to another variant does not stop the rest
// of the group: they still run and receive the value read at selection, while
// proxy.Get returns the new state.
func OnState[V, P, S, A, D any](reg *Registry[S, A, D], ev events.Event[P], fn any, opts ...Option) error {
	variant := state.VariantOf[V]()
	inv, sh, err := negotiate[V, P, S, A, D](fn, true)
	if err == nil && (reg.schema == nil || !reg.schema.Has(variant)) {
		err = fmt.Errorf("%w: %s", state.ErrUnknownVariant, variant.Type())
	}
	return reg.add(ev, fn, filterInState, variant, inv, sh, err, opts)
}

func (r *Registry[S, A, D]) add(ev events.Descriptor, fn any, filter filterMode, variant state.Variant, inv invoker[S, A, D], sh string, negotiateErr error, opts []Option) error {
	o := handlerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.name == "" {
		o.name = funcName(fn)
	}
	evName := describeEvent(ev)

	r.mu.Lock()
	defer r.mu.Unlock()

	reject := func(err error) error {
		regErr := &RegistrationError{Handler: o.name, Event: evName, Err: err}
		if !errors.Is(err, ErrRegistryFrozen) {
			r.errs = append(r.errs, regErr)
		}
		logger.FSMWire.LogAttrs(context.Background(), slog.LevelWarn, "register.handler.reject",
			slog.String("handler", o.name),
			slog.String("kind", evName),
			slog.String("reason", err.Error()),
		)
		return regErr
	}

	if r.frozen {
		return reject(ErrRegistryFrozen)
	}
	if negotiateErr != nil {
		return reject(negotiateErr)
	}

	h := &handler[S, A, D]{
		name:        o.name,
		shape:       sh,
		kind:        ev.Kind(),
		description: o.description,
		hidden:      o.hidden,
		filter:      filter,
		variant:     variant,
		invoke:      inv,
	}
	if h.kind == events.KindCommand {
		cmd := strings.TrimPrefix(ev.Command(), "/")
		if !commandRe.MatchString(cmd) {
			return reject(fmt.Errorf("%w: %q", ErrInvalidCommand, ev.Command()))
		}
		for _, other := range r.handlers {
			if other.kind != events.KindCommand || other.command != cmd {
				continue
			}
			if h.description != "" && other.description != "" && h.description != other.description {
				return reject(fmt.Errorf("%w: /%s described as %q and %q", ErrCommandConflict, cmd, other.description, h.description))
			}
		}
		h.command = cmd
	}

	r.handlers = append(r.handlers, h)
	logger.FSMWire.LogAttrs(context.Background(), slog.LevelDebug, "register.handler",
		slog.String("handler", h.name),
		slog.String("kind", evName),
		slog.String("group", h.group()),
		slog.String("shape", h.shape),
	)
	return nil
}

func describeEvent(ev events.Descriptor) string {
	if ev == nil {
		return "unknown"
	}
	if ev.Kind() == events.KindCommand {
		return "command /" + strings.TrimPrefix(ev.Command(), "/")
	}
	return ev.Kind().String()
}

// funcName derives a diagnostic name from the function symbol, e.g. "main.askName".
func funcName(fn any) string {
	if fn == nil {
		return "nil"
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "anonymous"
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return normalizeHandlerName(strings.TrimSuffix(name, "-fm"))
}
