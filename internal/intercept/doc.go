// Package intercept redirects calls to chosen methods of a host object runtime
// to registered handler objects.
//
// A host is any runtime that routes its method calls through a replaceable
// Dispatcher. At startup the Extension captures the host's dispatcher and
// installs an Interposer in its place; at shutdown the original is restored.
//
// # Dispatch
//
// For every call the Interposer:
//
//  1. Passes the call through if it belongs to a running handler's call chain.
//  2. Passes it through unless it is bound (has an owner type and a member name).
//  3. Looks up "Owner::member" in the scope's Registry; passes through on a miss.
//  4. Passes it through if the call has no receiver.
//  5. Otherwise runs the entry's handler in place of the call.
//
// The handler's return value becomes the call's result. A handler error or
// panic is logged as a warning and the call's result stays empty; the caller
// is never told. The original dispatcher is not called after a handler ran.
//
// Step 1 is what lets a handler call the method it intercepts: calls made
// with the handler's context reach the Interposer again, see the guard, and
// execute normally. The guard lives in that context, not in shared state, so
// a call from another goroutine is intercepted as usual while the handler
// runs.
//
// # Handlers
//
// Handlers implement Interceptor:
//
//	type Interceptor interface {
//	    Intercept(ctx context.Context, receiver any, member string, args []any) (any, error)
//	}
//
// Handlers and arguments that implement Retainer are reference counted: the
// Registry retains a handler for as long as an Entry holds it, and the
// Interposer retains every argument it copies into the handler's argument list
// until the handler returns.
//
// # Scopes
//
// A Scope holds one Registry. In ScopeProcess mode a single
// scope lives from OnStartup to OnShutdown. In ScopeUnit mode OnUnitStart and
// OnUnitEnd bracket each unit of work with a fresh scope, so bindings never
// leak between units. Between units every call passes through.
//
// # Usage
//
//	ext := intercept.NewExtension(host, intercept.DefaultConfig(), intercept.WithLogger(log))
//	if err := ext.OnStartup(); err != nil {
//	    return err
//	}
//	defer ext.OnShutdown()
//
//	ext.MethodIntercept("Calc", "add", intercept.InterceptorFunc(
//	    func(ctx context.Context, recv any, member string, args []any) (any, error) {
//	        return args[0].(int) + args[1].(int), nil
//	    }))
package intercept
