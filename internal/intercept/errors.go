package intercept

import (
	"errors"
	"fmt"
)

// Registration and lifecycle errors.
var (
	// ErrInvalidHandler indicates the handler does not implement Interceptor.
	ErrInvalidHandler = errors.New("intercept: handler does not implement Interceptor")

	// ErrInvalidName indicates an empty owner or member name, or one containing ':'.
	ErrInvalidName = errors.New("intercept: invalid owner or member name")

	// ErrOutOfMemory indicates the registry could not grow to hold another entry.
	ErrOutOfMemory = errors.New("intercept: registry capacity exhausted")

	// ErrNoScope indicates there is no active scope to register into.
	ErrNoScope = errors.New("intercept: no active scope")

	// ErrAlreadyStarted indicates OnStartup was called twice.
	ErrAlreadyStarted = errors.New("intercept: extension already started")

	// ErrNotStarted indicates a lifecycle call that requires OnStartup first.
	ErrNotStarted = errors.New("intercept: extension not started")

	// ErrNoDispatcher indicates the host exposes no dispatcher to wrap.
	ErrNoDispatcher = errors.New("intercept: host has no dispatcher")

	// ErrUnitActive indicates OnUnitStart was called while a unit is running.
	ErrUnitActive = errors.New("intercept: unit of work already active")
)

// RegistrationError describes a rejected registration.
type RegistrationError struct {
	Owner  string
	Member string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %s: %v", Key(e.Owner, e.Member), e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// InterceptionError describes a handler run that did not complete.
// Panic is set when the handler panicked instead of returning an error.
type InterceptionError struct {
	Owner  string
	Member string
	Err    error
	Panic  any
}

func (e *InterceptionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("interception failed for %s: panic: %v", Key(e.Owner, e.Member), e.Panic)
	}
	return fmt.Sprintf("interception failed for %s: %v", Key(e.Owner, e.Member), e.Err)
}

func (e *InterceptionError) Unwrap() error {
	return e.Err
}
