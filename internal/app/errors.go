package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Startup was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates a script was run before Startup.
	ErrNotRunning = errors.New("application not running")
)

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// RunError reports which step of a script run failed.
type RunError struct {
	Op     string // "unit", "prelude", "binding", "script" or "hook"
	Target string // file path or binding key
	Err    error
}

func (e *RunError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
