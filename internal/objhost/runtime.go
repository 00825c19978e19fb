// Package objhost is an object runtime for plain Go values: methods, static
// members and free functions are called by name, and every call goes through
// a replaceable intercept.Dispatcher.
//
// A Runtime is safe for concurrent use. Each Invoke starts a new call chain;
// a handler that calls back into the runtime passes its context to
// InvokeContext so those calls execute without being intercepted again.
package objhost

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/dshills/interpose/internal/intercept"
)

// Runtime calls Go methods and functions by name.
type Runtime struct {
	mu sync.RWMutex

	classes map[reflect.Type]string  // normalized type -> class name
	statics map[string]reflect.Value // "Class::member" -> func
	funcs   map[string]reflect.Value // free function name -> func

	dispatcher intercept.Dispatcher
}

// New creates an empty runtime whose dispatcher executes calls directly.
func New() *Runtime {
	r := &Runtime{
		classes: make(map[reflect.Type]string),
		statics: make(map[string]reflect.Value),
		funcs:   make(map[string]reflect.Value),
	}
	r.dispatcher = intercept.DispatcherFunc(r.execute)
	return r
}

// Dispatcher returns the installed dispatcher.
func (r *Runtime) Dispatcher() intercept.Dispatcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatcher
}

// SetDispatcher replaces the installed dispatcher.
func (r *Runtime) SetDispatcher(d intercept.Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatcher = d
}

// DefineClass names the type of sample. Values of that type (or pointers to
// it) report name as their owner type.
func (r *Runtime) DefineClass(name string, sample any) error {
	if name == "" || sample == nil {
		return ErrInvalidClass
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[baseType(reflect.TypeOf(sample))] = name
	return nil
}

// DefineStatic registers fn as a receiverless member of class.
func (r *Runtime) DefineStatic(class, member string, fn any) error {
	v, err := funcValue(fn)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statics[intercept.Key(class, member)] = v
	return nil
}

// DefineFunc registers fn as a free function.
func (r *Runtime) DefineFunc(name string, fn any) error {
	v, err := funcValue(fn)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = v
	return nil
}

// ClassOf returns the owner type name of v: its defined class name, or its
// "pkg.Type" name when the type was never defined.
func (r *Runtime) ClassOf(v any) string {
	if v == nil {
		return ""
	}
	r.mu.RLock()
	name, ok := r.classes[baseType(reflect.TypeOf(v))]
	r.mu.RUnlock()
	if ok {
		return name
	}
	return intercept.TypeName(v)
}

// Invoke calls method on recv in a new call chain.
func (r *Runtime) Invoke(recv any, method string, args ...any) (any, error) {
	return r.InvokeContext(context.Background(), recv, method, args...)
}

// InvokeContext calls method on recv as part of ctx's call chain. A nil
// pointer receiver still resolves its class, but the call is not
// intercepted.
func (r *Runtime) InvokeContext(ctx context.Context, recv any, method string, args ...any) (any, error) {
	if recv == nil {
		return nil, fmt.Errorf("%w: %s on nil receiver", ErrUnknownMember, method)
	}
	return r.dispatch(&intercept.Call{
		Context:  ctx,
		Owner:    r.ClassOf(recv),
		Member:   method,
		Receiver: recv,
		Args:     args,
	})
}

// InvokeStatic calls a receiverless member of class.
func (r *Runtime) InvokeStatic(class, member string, args ...any) (any, error) {
	return r.dispatch(&intercept.Call{
		Owner:  class,
		Member: member,
		Args:   args,
	})
}

// CallFunc calls a free function.
func (r *Runtime) CallFunc(name string, args ...any) (any, error) {
	return r.dispatch(&intercept.Call{
		Member: name,
		Args:   args,
	})
}

func (r *Runtime) dispatch(call *intercept.Call) (any, error) {
	r.Dispatcher().Dispatch(call)
	return call.Result, call.Err
}

// execute is the runtime's own dispatcher.
func (r *Runtime) execute(call *intercept.Call) {
	fn, err := r.resolve(call)
	if err != nil {
		call.Err = err
		return
	}
	call.Result, call.Err = invoke(fn, call.Args)
}

func (r *Runtime) resolve(call *intercept.Call) (reflect.Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case call.Owner == "":
		if fn, ok := r.funcs[call.Member]; ok {
			return fn, nil
		}
	case call.Receiver == nil:
		if fn, ok := r.statics[call.Key()]; ok {
			return fn, nil
		}
	default:
		if m := reflect.ValueOf(call.Receiver).MethodByName(call.Member); m.IsValid() {
			return m, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownMember, describe(call))
}

func describe(call *intercept.Call) string {
	if call.Owner == "" {
		return call.Member
	}
	return call.Key()
}

func funcValue(fn any) (reflect.Value, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return reflect.Value{}, ErrNotFunc
	}
	return v, nil
}

// baseType strips pointers so T and *T share a class name.
func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
