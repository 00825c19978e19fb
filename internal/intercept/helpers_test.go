package intercept

import (
	"context"
	"sync"
)

// method is a fake host method body.
type method func(recv any, args []any) any

// fakeHost is a minimal object runtime: calls are looked up by key (bound
// calls) or by member name (free functions).
type fakeHost struct {
	mu         sync.Mutex
	dispatcher Dispatcher
	methods    map[string]method
	executed   []string
}

func newFakeHost() *fakeHost {
	h := &fakeHost{methods: make(map[string]method)}
	h.dispatcher = DispatcherFunc(h.execute)
	return h
}

func (h *fakeHost) Dispatcher() Dispatcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dispatcher
}

func (h *fakeHost) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatcher = d
}

func (h *fakeHost) define(owner, member string, fn method) {
	if owner == "" {
		h.methods[member] = fn
		return
	}
	h.methods[Key(owner, member)] = fn
}

// execute is the host's own dispatcher.
func (h *fakeHost) execute(call *Call) {
	name := call.Member
	if call.Owner != "" {
		name = call.Key()
	}
	fn, ok := h.methods[name]
	if !ok {
		call.Err = ErrNoDispatcher
		return
	}
	h.mu.Lock()
	h.executed = append(h.executed, name)
	h.mu.Unlock()
	call.Result = fn(call.Receiver, call.Args)
}

// call dispatches a new call chain through whatever dispatcher is installed.
func (h *fakeHost) call(owner, member string, recv any, args ...any) *Call {
	return h.callContext(context.Background(), owner, member, recv, args...)
}

// callContext dispatches a call belonging to ctx's chain.
func (h *fakeHost) callContext(ctx context.Context, owner, member string, recv any, args ...any) *Call {
	c := &Call{Context: ctx, Owner: owner, Member: member, Receiver: recv, Args: args}
	h.Dispatcher().Dispatch(c)
	return c
}

// counted is a reference-counted value.
type counted struct {
	refs    int
	maxRefs int
}

func (c *counted) Retain() {
	c.refs++
	if c.refs > c.maxRefs {
		c.maxRefs = c.refs
	}
}

func (c *counted) Release() {
	c.refs--
}

// countedHandler is a reference-counted interceptor.
type countedHandler struct {
	counted
	calls int
	fn    func(ctx context.Context, recv any, member string, args []any) (any, error)
}

func (h *countedHandler) Intercept(ctx context.Context, recv any, member string, args []any) (any, error) {
	h.calls++
	if h.fn != nil {
		return h.fn(ctx, recv, member, args)
	}
	return nil, nil
}

type calc struct{ name string }
