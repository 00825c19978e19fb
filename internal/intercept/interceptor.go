package intercept

import (
	"context"
	"path"
	"reflect"
	"strings"
)

// Interceptor is the contract every registered handler satisfies.
//
// Intercept replaces the intercepted call. It receives the handler's context,
// the call's receiver, the member name and a copy of the positional
// arguments. Calls made through the host with ctx execute normally, which is
// how a handler reaches the method it intercepts. A non-nil return
// value becomes the call's result; nil leaves the result empty. A non-nil
// error is logged as a warning and never reaches the call site.
type Interceptor interface {
	Intercept(ctx context.Context, receiver any, member string, args []any) (any, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, receiver any, member string, args []any) (any, error)

// Intercept calls f.
func (f InterceptorFunc) Intercept(ctx context.Context, receiver any, member string, args []any) (any, error) {
	return f(ctx, receiver, member, args)
}

// Retainer is implemented by reference-counted values. The registry retains
// handlers it stores; the interposer retains arguments it aliases into a
// handler's argument list.
type Retainer interface {
	Retain()
	Release()
}

// Namer lets a handler report its own dynamic type name for diagnostics.
type Namer interface {
	HandlerName() string
}

// TypeName returns a stable "pkg.Type" name for v, preferring Namer.
func TypeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	if n, ok := v.(Namer); ok {
		return n.HandlerName()
	}

	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return t.String()
	}
	if p := t.PkgPath(); p != "" {
		return path.Base(p) + "." + name
	}
	return name
}

func retain(v any) {
	if r, ok := v.(Retainer); ok {
		r.Retain()
	}
}

func release(v any) {
	if r, ok := v.(Retainer); ok {
		r.Release()
	}
}
