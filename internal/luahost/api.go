package luahost

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/interpose/internal/intercept"
)

// Registrar is the registration side of an interception extension.
// *intercept.Extension satisfies it.
type Registrar interface {
	MethodIntercept(owner, member string, handler any) bool
	Entries() []intercept.EntryInfo
}

// Attach exposes reg to scripts as method_intercept and intercept_entries.
func (r *Runtime) Attach(reg Registrar) {
	r.registrar = reg
	r.installAPI()
}

func (r *Runtime) installAPI() {
	r.L.SetGlobal("method_intercept", r.L.NewFunction(r.luaMethodIntercept))
	r.L.SetGlobal("intercept_entries", r.L.NewFunction(r.luaInterceptEntries))
}

// luaMethodIntercept implements method_intercept(owner, member, handler).
// A value without an intercept function is passed on as is, so the
// registrar rejects it and the script sees false.
func (r *Runtime) luaMethodIntercept(L *lua.LState) int {
	owner := L.CheckString(1)
	member := L.CheckString(2)
	value := L.Get(3)

	var handler any = value
	if h, err := r.NewHandler(value); err == nil {
		handler = h
	} else {
		r.log.Debug("method_intercept %s: %v", intercept.Key(owner, member), err)
	}

	L.Push(lua.LBool(r.registrar.MethodIntercept(owner, member, handler)))
	return 1
}

// luaInterceptEntries implements intercept_entries(). It returns a sequence of
// {owner, member, handler} tables sorted by key.
func (r *Runtime) luaInterceptEntries(L *lua.LState) int {
	entries := r.registrar.Entries()
	list := L.CreateTable(len(entries), 0)
	for i, e := range entries {
		t := L.CreateTable(0, 3)
		t.RawSetString("owner", lua.LString(e.OwnerType))
		t.RawSetString("member", lua.LString(e.MemberName))
		t.RawSetString("handler", lua.LString(e.HandlerType))
		list.RawSetInt(i+1, t)
	}
	L.Push(list)
	return 1
}
