package bootstrap

import (
	"context"
	"errors"
	"fmt"

	coreconfig "github.com/m3rciful/stater/core/config"
)

// Seeder loads initial data, such as preset conversation states, before the bot starts.
type Seeder interface {
	Seed(ctx context.Context, res *Result) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context, res *Result) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context, res *Result) error {
	return f(ctx, res)
}

// DepsProvider builds the dependency bundle handed to handlers.
type DepsProvider[D any] interface {
	Provide(ctx context.Context, cfg *coreconfig.Config, res *Result) (D, error)
}

// DepsProviderFunc adapts a function to the DepsProvider interface.
type DepsProviderFunc[D any] func(ctx context.Context, cfg *coreconfig.Config, res *Result) (D, error)

// Provide executes the underlying function.
func (f DepsProviderFunc[D]) Provide(ctx context.Context, cfg *coreconfig.Config, res *Result) (D, error) {
	return f(ctx, cfg, res)
}

// Modules groups optional bootstrapping hooks for seeding and dependency wiring.
type Modules[D any] struct {
	Seeders []Seeder
	Deps    DepsProvider[D]
}

// Apply runs every seeder in order, then builds the dependencies.
// A nil Deps yields the zero D.
func (m Modules[D]) Apply(ctx context.Context, cfg *coreconfig.Config, res *Result) (D, error) {
	var zero D
	for i, s := range m.Seeders {
		if s == nil {
			continue
		}
		if err := s.Seed(ctx, res); err != nil {
			return zero, fmt.Errorf("bootstrap: seeder %d: %w", i, err)
		}
	}
	if m.Deps == nil {
		return zero, nil
	}
	deps, err := m.Deps.Provide(ctx, cfg, res)
	if err != nil {
		return zero, errors.Join(errors.New("bootstrap: deps provider failed"), err)
	}
	return deps, nil
}
