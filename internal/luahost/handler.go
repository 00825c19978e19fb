package luahost

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/interpose/internal/intercept"
)

// Handler adapts a Lua object with an intercept method to
// intercept.Interceptor. The method is called as
//
//	handler:intercept(receiver, member, args)
//
// where args is a sequence of the call's arguments with args.n set to their
// count, as table.pack does, so trailing nils are not lost.
//
// The intercept field is looked up on every call, so reassigning it (or the
// method on the handler's class) takes effect immediately.
type Handler struct {
	rt   *Runtime
	self lua.LValue
}

var _ intercept.Interceptor = (*Handler)(nil)

// NewHandler wraps v. It fails with ErrNotHandler unless v is a table or
// userdata whose intercept field is a function.
func (r *Runtime) NewHandler(v lua.LValue) (*Handler, error) {
	switch v.(type) {
	case *lua.LTable, *lua.LUserData:
	default:
		return nil, fmt.Errorf("%w: got %s", ErrNotHandler, v.Type())
	}
	if _, ok := r.L.GetField(v, "intercept").(*lua.LFunction); !ok {
		return nil, fmt.Errorf("%w: no intercept function", ErrNotHandler)
	}
	return &Handler{rt: r, self: v}, nil
}

// HandlerFor wraps the global named name.
func (r *Runtime) HandlerFor(name string) (*Handler, error) {
	h, err := r.NewHandler(r.L.GetGlobal(name))
	if err != nil {
		return nil, fmt.Errorf("global %q: %w", name, err)
	}
	return h, nil
}

// Intercept calls the Lua intercept method. Class calls the method makes run
// in ctx's call chain. A nil Lua result is reported as nil.
func (h *Handler) Intercept(ctx context.Context, receiver any, member string, args []any) (any, error) {
	r := h.rt
	L := r.L

	fn, ok := L.GetField(h.self, "intercept").(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: intercept is no longer a function", ErrNotHandler)
	}

	list := L.CreateTable(len(args), 1)
	for i, arg := range args {
		list.RawSetInt(i+1, r.toLua(arg))
	}
	list.RawSetString("n", lua.LNumber(len(args)))

	top := L.GetTop()
	L.Push(fn)
	L.Push(h.self)
	L.Push(r.toLua(receiver))
	L.Push(lua.LString(member))
	L.Push(list)
	var err error
	r.withChain(ctx, func() {
		err = L.PCall(4, 1, nil)
	})
	if err != nil {
		L.SetTop(top)
		return nil, err
	}

	ret := L.Get(-1)
	L.SetTop(top)
	if ret == lua.LNil {
		return nil, nil
	}
	return ret, nil
}

// HandlerName reports the handler's class name, or its Lua type.
func (h *Handler) HandlerName() string {
	if name := h.rt.ClassOf(h.self); name != "" {
		return name
	}
	return h.self.Type().String()
}

// Value returns the wrapped Lua object.
func (h *Handler) Value() lua.LValue {
	return h.self
}
