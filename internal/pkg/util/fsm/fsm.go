// Package fsm carries small helpers around github.com/looplab/fsm.
package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback into an fsm.Callback,
// propagating the error through the event so the triggering Event() call
// fails.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// WrapGuard adapts an error-returning callback into a before_ guard.
// Unlike WrapEvent it cancels the transition on error, so the machine
// keeps its current state and Event() returns the guard's error.
func WrapGuard(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Cancel(err)
		}
	}
}

// IsInvalidTransition reports whether err means the event is not legal
// from the machine's current state.
func IsInvalidTransition(err error) bool {
	var invalid fsm.InvalidEventError
	return errors.As(err, &invalid)
}
