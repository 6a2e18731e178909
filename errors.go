package kfrp

import (
	"errors"
	"fmt"
)

var (
	// ErrTimelineNotInitialized is raised when a zero Event, Signal or
	// Behavior is used.
	ErrTimelineNotInitialized = errors.New("timeline not initialized")
	ErrNonMonotonicSample     = errors.New("integrated behavior sampled with non-monotonic time")
	ErrTypeMismatch           = errors.New("node value type mismatch")
	ErrTimeTravelDisabled     = errors.New("time travel is disabled")
	ErrFrameNotRetained       = errors.New("frame not retained")
	ErrUnknownNode            = errors.New("unknown external node")
	ErrClosed                 = errors.New("timeline is closed")
)

// as casts a type-erased node value. A nil value yields the zero value.
func as[T any](v any, label string) T {
	if v == nil {
		var zero T
		return zero
	}
	t, ok := v.(T)
	if !ok {
		panic(fmt.Errorf("%w: node %q holds %T, want %T", ErrTypeMismatch, label, v, *new(T)))
	}
	return t
}
