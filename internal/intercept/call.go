package intercept

import (
	"context"
	"reflect"
)

// Call is one invocation as seen by a host dispatcher.
//
// A host fills Owner, Member, Receiver and Args, hands the Call to its
// dispatcher, and reads Result (and Err) back afterwards. A nil Result is the
// default-empty value.
//
// Context identifies the call chain. Calls a handler makes with the context
// it was given are part of that handler's chain and are never intercepted.
type Call struct {
	// Context is the call chain's context. Nil means context.Background.
	Context context.Context

	// Owner is the name of the type the member belongs to. Empty for free functions.
	Owner string
	// Member is the name of the invoked method or function.
	Member string
	// Receiver is the instance the call is bound to, or nil.
	Receiver any
	// Args are the positional arguments in call order.
	Args []any

	// Result receives the call's return value.
	Result any
	// Err is set by the host when the call could not be executed at all.
	Err error
}

// Bound reports whether the call carries both an owner type and a member name.
func (c *Call) Bound() bool {
	return c.Owner != "" && c.Member != ""
}

// Ctx returns the call's context, never nil.
func (c *Call) Ctx() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

// HasReceiver reports whether the call is bound to an instance. A nil
// pointer (or other nil reference) receiver counts as none.
func (c *Call) HasReceiver() bool {
	if c.Receiver == nil {
		return false
	}
	v := reflect.ValueOf(c.Receiver)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return !v.IsNil()
	}
	return true
}

// Key returns the registry key for the call.
func (c *Call) Key() string {
	return Key(c.Owner, c.Member)
}

// Dispatcher executes calls. Hosts route every call they make through one.
type Dispatcher interface {
	Dispatch(call *Call)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(call *Call)

// Dispatch calls f(call).
func (f DispatcherFunc) Dispatch(call *Call) {
	f(call)
}

// Host is a runtime with a replaceable dispatch entry point.
type Host interface {
	// Dispatcher returns the dispatcher currently installed.
	Dispatcher() Dispatcher
	// SetDispatcher replaces the installed dispatcher.
	SetDispatcher(d Dispatcher)
}
