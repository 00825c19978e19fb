// Package luahost is a Lua object runtime built on gopher-lua whose class
// methods are routed through a replaceable intercept.Dispatcher.
//
// Scripts declare classes with class(name, methods) and call them with the
// usual colon syntax. A call whose first argument is an instance of the class
// is bound to that instance; any other call is receiverless (static).
//
//	Calc = class("Calc", {
//	    add = function(self, a, b) return a + b end,
//	})
//	local c = Calc.new()
//	print(c:add(2, 3))
//
// Once Attach is called, scripts can also register handlers with
// method_intercept(owner, member, handler) and list them with
// intercept_entries().
//
// A gopher-lua state is not goroutine-safe. A Runtime must only be used from
// one goroutine at a time.
package luahost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/interpose/internal/intercept"
	"github.com/dshills/interpose/internal/logging"
)

// DefaultTimeout bounds a single DoFile or DoString call.
const DefaultTimeout = 5 * time.Second

// Runtime owns one Lua state and its classes.
type Runtime struct {
	mu sync.Mutex
	L  *lua.LState

	timeout time.Duration
	out     io.Writer
	log     *logging.Logger

	classes map[string]*class
	metas   map[*lua.LTable]*class

	dmu        sync.RWMutex
	dispatcher intercept.Dispatcher

	// chain is the call chain of the Lua code currently executing on behalf
	// of a dispatched call or a handler. Nil at top level.
	chain context.Context

	registrar Registrar
	closed    bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithTimeout sets the deadline applied to each DoFile and DoString call.
// Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// WithOutput redirects the Lua print function.
func WithOutput(w io.Writer) Option {
	return func(r *Runtime) {
		if w != nil {
			r.out = w
		}
	}
}

// WithLogger sets the runtime logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a runtime with the safe standard libraries and the class global.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		timeout: DefaultTimeout,
		out:     os.Stdout,
		log:     logging.Nop(),
		classes: make(map[string]*class),
		metas:   make(map[*lua.LTable]*class),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("luahost")

	r.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	r.dispatcher = intercept.DispatcherFunc(r.execute)
	r.install()
	return r
}

// install opens the safe libraries and defines the runtime's globals.
func (r *Runtime) install() {
	L := r.L
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Scripts are loaded by the runtime only.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(r.luaPrint))
	L.SetGlobal("class", L.NewFunction(r.luaClass))
	if r.registrar != nil {
		r.installAPI()
	}
}

func (r *Runtime) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	fmt.Fprintln(r.out, strings.Join(parts, "\t"))
	return 0
}

// Dispatcher returns the installed dispatcher.
func (r *Runtime) Dispatcher() intercept.Dispatcher {
	r.dmu.RLock()
	defer r.dmu.RUnlock()
	return r.dispatcher
}

// SetDispatcher replaces the installed dispatcher.
func (r *Runtime) SetDispatcher(d intercept.Dispatcher) {
	r.dmu.Lock()
	defer r.dmu.Unlock()
	r.dispatcher = d
}

// DoFile executes a Lua file.
func (r *Runtime) DoFile(ctx context.Context, path string) error {
	return r.run(ctx, func() error {
		return r.L.DoFile(path)
	})
}

// DoString executes a Lua chunk.
func (r *Runtime) DoString(ctx context.Context, code string) error {
	return r.run(ctx, func() error {
		return r.L.DoString(code)
	})
}

func (r *Runtime) run(ctx context.Context, fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()

	err = fn()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// GetGlobal returns a global variable as a Go value.
func (r *Runtime) GetGlobal(name string) any {
	return toGo(r.L.GetGlobal(name))
}

// Global returns a global variable as a Lua value.
func (r *Runtime) Global(name string) lua.LValue {
	return r.L.GetGlobal(name)
}

// Invoke calls member on recv through the installed dispatcher, starting a
// new call chain. recv must be an instance of a class defined in this runtime.
//
// Invoke does not lock the runtime: it may be called from Go code that is
// itself running inside a script, such as an interceptor.
func (r *Runtime) Invoke(recv lua.LValue, member string, args ...any) (any, error) {
	return r.InvokeContext(context.Background(), recv, member, args...)
}

// InvokeContext is Invoke as part of ctx's call chain. A Go interceptor passes
// its context here to reach the member it intercepts.
func (r *Runtime) InvokeContext(ctx context.Context, recv lua.LValue, member string, args ...any) (any, error) {
	c := r.classOf(recv)
	if c == nil {
		return nil, fmt.Errorf("%w: receiver is not a class instance", ErrUnknownMember)
	}
	call := &intercept.Call{Context: ctx, Owner: c.name, Member: member, Receiver: recv, Args: args}
	r.Dispatcher().Dispatch(call)
	return toGo(r.toLua(call.Result)), call.Err
}

// InvokeStatic calls a receiverless member of class through the installed
// dispatcher.
func (r *Runtime) InvokeStatic(class, member string, args ...any) (any, error) {
	call := &intercept.Call{Owner: class, Member: member, Args: args}
	r.Dispatcher().Dispatch(call)
	return toGo(r.toLua(call.Result)), call.Err
}

// CallFunc calls a global Lua function through the installed dispatcher.
func (r *Runtime) CallFunc(name string, args ...any) (any, error) {
	call := &intercept.Call{Member: name, Args: args}
	r.Dispatcher().Dispatch(call)
	return toGo(r.toLua(call.Result)), call.Err
}

// Reset removes every user global and class, keeping the libraries and the
// runtime's own globals.
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	globals := r.L.Get(lua.GlobalsIndex).(*lua.LTable)
	var keys []string
	globals.ForEach(func(k, _ lua.LValue) {
		if ks, ok := k.(lua.LString); ok && !builtinGlobals[string(ks)] {
			keys = append(keys, string(ks))
		}
	})
	for _, k := range keys {
		r.L.SetGlobal(k, lua.LNil)
	}

	clear(r.classes)
	clear(r.metas)
	r.install()
	return nil
}

var builtinGlobals = map[string]bool{
	"_G": true, "_VERSION": true,
	"assert": true, "error": true, "getmetatable": true,
	"ipairs": true, "next": true, "pairs": true, "pcall": true,
	"print": true, "rawequal": true, "rawget": true, "rawlen": true,
	"rawset": true, "select": true, "setmetatable": true,
	"tonumber": true, "tostring": true, "type": true, "xpcall": true,
	"unpack": true, "collectgarbage": true, "module": true, "require": true,
	"newproxy": true, "getfenv": true, "setfenv": true,
	"coroutine": true, "math": true, "string": true, "table": true,
}

// IsClosed reports whether Close has been called.
func (r *Runtime) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close releases the Lua state.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.L.Close()
	r.closed = true
	return nil
}

// withChain runs fn with ctx as the current call chain.
func (r *Runtime) withChain(ctx context.Context, fn func()) {
	prev := r.chain
	r.chain = ctx
	defer func() { r.chain = prev }()
	fn()
}
