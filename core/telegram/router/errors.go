package router

import (
	"errors"
	"fmt"

	"github.com/m3rciful/stater/core/telegram/state"
)

var (
	// ErrUnsatisfiableSignature means no supported handler shape matches the function.
	ErrUnsatisfiableSignature = errors.New("router: handler signature matches no supported shape")
	// ErrAmbiguousSignature means more than one supported shape matches the function.
	ErrAmbiguousSignature = errors.New("router: handler signature matches several shapes")
	// ErrCommandConflict means one command was registered with different descriptions.
	ErrCommandConflict = errors.New("router: conflicting command registration")
	// ErrInvalidCommand means the command text is not a valid bot command.
	ErrInvalidCommand = errors.New("router: invalid command")
	// ErrRegistryFrozen means registration was attempted after Build.
	ErrRegistryFrozen = errors.New("router: registry already built")
	// ErrDuplicateEndpoint means a transport received two listeners for one endpoint.
	ErrDuplicateEndpoint = errors.New("router: endpoint already has a listener")
)

// RegistrationError is a rejected handler registration.
type RegistrationError struct {
	Handler string
	Event   string
	Err     error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("router: register %s on %s: %v", e.Handler, e.Event, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// HandlerError is a failure caught at a handler group boundary.
type HandlerError struct {
	Handler string
	Group   string
	Key     state.Key
	Err     error
	// Panic holds the recovered value when the handler panicked.
	Panic any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("router: handler %s (%s) on %s panicked: %v", e.Handler, e.Group, e.Key, e.Panic)
	}
	return fmt.Sprintf("router: handler %s (%s) on %s: %v", e.Handler, e.Group, e.Key, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Code classifies the failure for log summaries.
func (e *HandlerError) Code() string {
	if e.Panic != nil {
		return "handler_panic"
	}
	return "handler_failed"
}
