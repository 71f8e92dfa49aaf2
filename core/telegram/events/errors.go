package events

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEvent marks an update missing a field its category requires.
	ErrMalformedEvent = errors.New("events: malformed event")
	// ErrUnsupportedUpdate marks an update carrying no payload the router handles.
	ErrUnsupportedUpdate = errors.New("events: unsupported update")
)

// MalformedError names the category and the missing field of a malformed update.
type MalformedError struct {
	Category Category
	Field    string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("events: malformed %s: missing %s", e.Category, e.Field)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedEvent }

// Code implements the error code contract used by log summaries.
func (e *MalformedError) Code() string { return "malformed_event" }

func malformed(c Category, field string) error {
	return &MalformedError{Category: c, Field: field}
}
