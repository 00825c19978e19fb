package luahost

import "errors"

// Errors for Lua runtime operations.
var (
	// ErrClosed is returned when operating on a closed runtime.
	ErrClosed = errors.New("luahost: runtime is closed")

	// ErrTimeout is returned when a script runs past its deadline.
	ErrTimeout = errors.New("luahost: execution timeout")

	// ErrUnknownMember is reported when a call names no class member or global function.
	ErrUnknownMember = errors.New("luahost: unknown member")

	// ErrInvalidClass is returned for an empty class name or one containing ':'.
	ErrInvalidClass = errors.New("luahost: invalid class")

	// ErrNotHandler is returned when a value has no callable intercept field.
	ErrNotHandler = errors.New("luahost: value is not a handler")
)
