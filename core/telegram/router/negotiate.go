package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/stater/core/telegram/state"
)

// invoker is the uniform call form every accepted handler shape is adapted to.
type invoker[S, A, D any] func(ctx context.Context, cur S, payload any, api A, proxy *state.Proxy[S], deps D) error

type shape[S, A, D any] struct {
	name  string
	match func(fn any) (invoker[S, A, D], bool)
}

// negotiate matches fn against the supported handler shapes:
//
//	func(ctx, [variant,] payload, [api,] [proxy,] [deps]) error
//
// Capabilities keep the order api, proxy, deps. Exactly one shape must match.
func negotiate[V, P, S, A, D any](fn any, withVariant bool) (invoker[S, A, D], string, error) {
	if fn == nil {
		return nil, "", fmt.Errorf("%w: nil handler", ErrUnsatisfiableSignature)
	}
	candidates := plainShapes[P, S, A, D]()
	if withVariant {
		candidates = append(candidates, variantShapes[V, P, S, A, D]()...)
	}

	var (
		found   invoker[S, A, D]
		matched []string
	)
	for _, sh := range candidates {
		if inv, ok := sh.match(fn); ok {
			found = inv
			matched = append(matched, sh.name)
		}
	}
	switch len(matched) {
	case 0:
		return nil, "", fmt.Errorf("%w: %T", ErrUnsatisfiableSignature, fn)
	case 1:
		return found, matched[0], nil
	default:
		return nil, "", fmt.Errorf("%w: %T fits %s", ErrAmbiguousSignature, fn, strings.Join(matched, " and "))
	}
}

func plainShapes[P, S, A, D any]() []shape[S, A, D] {
	return []shape[S, A, D]{
		{"(ctx, payload)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, P) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, _ S, p any, _ A, _ *state.Proxy[S], _ D) error {
				return f(ctx, p.(P))
			}, true
		}},
		{"(ctx, payload, api)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, P, A) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, _ S, p any, api A, _ *state.Proxy[S], _ D) error {
				return f(ctx, p.(P), api)
			}, true
		}},
		{"(ctx, payload, proxy)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, P, *state.Proxy[S]) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, _ S, p any, _ A, proxy *state.Proxy[S], _ D) error {
				return f(ctx, p.(P), proxy)
			}, true
		}},
		{"(ctx, payload, deps)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, P, D) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, _ S, p any, _ A, _ *state.Proxy[S], deps D) error {
				return f(ctx, p.(P), deps)
			}, true
		}},
		{"(ctx, payload, api, proxy)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, P, A, *state.Proxy[S]) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, _ S, p any, api A, proxy *state.Proxy[S], _ D) error {
				return f(ctx, p.(P), api, proxy)
			}, true
		}},
		{"(ctx, payload, api, deps)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, P, A, D) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, _ S, p any, api A, _ *state.Proxy[S], deps D) error {
				return f(ctx, p.(P), api, deps)
			}, true
		}},
		{"(ctx, payload, proxy, deps)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, P, *state.Proxy[S], D) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, _ S, p any, _ A, proxy *state.Proxy[S], deps D) error {
				return f(ctx, p.(P), proxy, deps)
			}, true
		}},
		{"(ctx, payload, api, proxy, deps)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, P, A, *state.Proxy[S], D) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, _ S, p any, api A, proxy *state.Proxy[S], deps D) error {
				return f(ctx, p.(P), api, proxy, deps)
			}, true
		}},
	}
}

func variantShapes[V, P, S, A, D any]() []shape[S, A, D] {
	return []shape[S, A, D]{
		{"(ctx, variant, payload)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, V, P) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, cur S, p any, _ A, _ *state.Proxy[S], _ D) error {
				return f(ctx, any(cur).(V), p.(P))
			}, true
		}},
		{"(ctx, variant, payload, api)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, V, P, A) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, cur S, p any, api A, _ *state.Proxy[S], _ D) error {
				return f(ctx, any(cur).(V), p.(P), api)
			}, true
		}},
		{"(ctx, variant, payload, proxy)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, V, P, *state.Proxy[S]) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, cur S, p any, _ A, proxy *state.Proxy[S], _ D) error {
				return f(ctx, any(cur).(V), p.(P), proxy)
			}, true
		}},
		{"(ctx, variant, payload, deps)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, V, P, D) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, cur S, p any, _ A, _ *state.Proxy[S], deps D) error {
				return f(ctx, any(cur).(V), p.(P), deps)
			}, true
		}},
		{"(ctx, variant, payload, api, proxy)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, V, P, A, *state.Proxy[S]) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, cur S, p any, api A, proxy *state.Proxy[S], _ D) error {
				return f(ctx, any(cur).(V), p.(P), api, proxy)
			}, true
		}},
		{"(ctx, variant, payload, api, deps)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, V, P, A, D) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, cur S, p any, api A, _ *state.Proxy[S], deps D) error {
				return f(ctx, any(cur).(V), p.(P), api, deps)
			}, true
		}},
		{"(ctx, variant, payload, proxy, deps)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, V, P, *state.Proxy[S], D) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, cur S, p any, _ A, proxy *state.Proxy[S], deps D) error {
				return f(ctx, any(cur).(V), p.(P), proxy, deps)
			}, true
		}},
		{"(ctx, variant, payload, api, proxy, deps)", func(fn any) (invoker[S, A, D], bool) {
			f, ok := fn.(func(context.Context, V, P, A, *state.Proxy[S], D) error)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, cur S, p any, api A, proxy *state.Proxy[S], deps D) error {
				return f(ctx, any(cur).(V), p.(P), api, proxy, deps)
			}, true
		}},
	}
}
