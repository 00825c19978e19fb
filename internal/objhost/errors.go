package objhost

import "errors"

// Runtime errors, reported through Call.Err.
var (
	// ErrUnknownMember indicates no method, static or function matched the call.
	ErrUnknownMember = errors.New("objhost: unknown member")

	// ErrArity indicates the wrong number of arguments.
	ErrArity = errors.New("objhost: wrong number of arguments")

	// ErrArgType indicates an argument that cannot be converted to the parameter type.
	ErrArgType = errors.New("objhost: argument type mismatch")

	// ErrNotFunc indicates a non-function was given where a function is required.
	ErrNotFunc = errors.New("objhost: not a function")

	// ErrInvalidClass indicates an empty class name or a nil sample value.
	ErrInvalidClass = errors.New("objhost: invalid class")
)
