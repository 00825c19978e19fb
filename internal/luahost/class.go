package luahost

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/interpose/internal/intercept"
)

// class is a Lua class declared with class(name, methods).
type class struct {
	name    string
	methods map[string]*lua.LFunction // the script's own functions
	table   *lua.LTable               // class table: dispatching wrappers and new
	meta    *lua.LTable               // metatable shared by instances
}

// luaClass implements class(name, methods). Declaring a name again replaces
// the class for new instances and calls; existing instances keep theirs.
func (r *Runtime) luaClass(L *lua.LState) int {
	name := L.CheckString(1)
	methods := L.OptTable(2, L.NewTable())

	c, err := r.defineClass(name, methods)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(c.table)
	return 1
}

func (r *Runtime) defineClass(name string, methods *lua.LTable) (*class, error) {
	if !intercept.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClass, name)
	}

	L := r.L
	c := &class{
		name:    name,
		methods: make(map[string]*lua.LFunction),
		table:   L.NewTable(),
		meta:    L.NewTable(),
	}

	methods.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		member := string(key)
		if fn, ok := v.(*lua.LFunction); ok && intercept.ValidName(member) {
			c.methods[member] = fn
			c.table.RawSetString(member, r.wrap(c, member))
			return
		}
		c.table.RawSetString(member, v)
	})

	c.table.RawSetString("new", L.NewFunction(func(L *lua.LState) int {
		inst := L.OptTable(1, L.NewTable())
		L.SetMetatable(inst, c.meta)
		L.Push(inst)
		return 1
	}))
	c.meta.RawSetString("__index", c.table)
	c.meta.RawSetString("__name", lua.LString(name))

	r.classes[name] = c
	r.metas[c.meta] = c
	return c, nil
}

// wrap returns the function stored in the class table for member. It turns
// the Lua call into an intercept.Call and hands it to the dispatcher.
func (r *Runtime) wrap(c *class, member string) *lua.LFunction {
	return r.L.NewFunction(func(L *lua.LState) int {
		call := &intercept.Call{Context: r.chain, Owner: c.name, Member: member}

		n := L.GetTop()
		first := 1
		if n >= 1 && r.classOf(L.Get(1)) == c {
			call.Receiver = L.Get(1)
			first = 2
		}
		call.Args = make([]any, 0, n-first+1)
		for i := first; i <= n; i++ {
			call.Args = append(call.Args, L.Get(i))
		}

		r.Dispatcher().Dispatch(call)

		if call.Err != nil {
			if apiErr, ok := call.Err.(*lua.ApiError); ok {
				L.Error(apiErr.Object, 0)
				return 0
			}
			L.RaiseError("%s", call.Err.Error())
			return 0
		}
		L.Push(r.toLua(call.Result))
		return 1
	})
}

// classOf returns the class v is an instance of, or nil.
func (r *Runtime) classOf(v lua.LValue) *class {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	meta, ok := r.L.GetMetatable(tbl).(*lua.LTable)
	if !ok {
		return nil
	}
	return r.metas[meta]
}

// ClassOf returns the class name of v, or "" when v is not an instance.
func (r *Runtime) ClassOf(v lua.LValue) string {
	if c := r.classOf(v); c != nil {
		return c.name
	}
	return ""
}

// execute is the runtime's own dispatcher: it runs the script function the
// call names.
func (r *Runtime) execute(call *intercept.Call) {
	fn, err := r.resolve(call)
	if err != nil {
		call.Err = err
		return
	}

	L := r.L
	top := L.GetTop()
	L.Push(fn)
	nargs := len(call.Args)
	if call.Receiver != nil {
		L.Push(r.toLua(call.Receiver))
		nargs++
	}
	for _, arg := range call.Args {
		L.Push(r.toLua(arg))
	}

	r.withChain(call.Context, func() {
		err = L.PCall(nargs, 1, nil)
	})
	if err != nil {
		L.SetTop(top)
		call.Err = err
		return
	}

	ret := L.Get(-1)
	L.SetTop(top)
	if ret != lua.LNil {
		call.Result = ret
	}
}

func (r *Runtime) resolve(call *intercept.Call) (*lua.LFunction, error) {
	if call.Owner == "" {
		if fn, ok := r.L.GetGlobal(call.Member).(*lua.LFunction); ok {
			return fn, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, call.Member)
	}
	c := r.classes[call.Owner]
	if recv, ok := call.Receiver.(lua.LValue); ok {
		if rc := r.classOf(recv); rc != nil && rc.name == call.Owner {
			c = rc
		}
	}
	if c != nil {
		if fn, ok := c.methods[call.Member]; ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMember, call.Key())
}
