package router

import (
	"context"

	"github.com/m3rciful/stater/core/telegram/events"
	"github.com/m3rciful/stater/core/telegram/state"
)

// Endpoint is what a listener is registered for: a kind, or one command.
type Endpoint struct {
	Kind    events.Kind
	Command string
}

func (e Endpoint) String() string {
	if e.Kind == events.KindCommand {
		return "command /" + e.Command
	}
	return e.Kind.String()
}

// Listener receives one classified event for a conversation.
type Listener[A any] func(ctx context.Context, api A, key state.Key, payload any) error

// Transport accepts listeners before the update stream starts.
type Transport[A any] interface {
	Listen(ep Endpoint, l Listener[A]) error
}
