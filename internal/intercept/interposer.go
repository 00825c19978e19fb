package intercept

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dshills/interpose/internal/logging"
)

// Interposer is the dispatcher installed in place of a host's own. It sends
// calls with a registered entry to the entry's handler and everything else to
// the original dispatcher.
type Interposer struct {
	original Dispatcher
	scope    atomic.Pointer[Scope]

	config  Config
	metrics *Metrics
	log     *logging.Logger
}

// NewInterposer wraps original. metrics may be nil.
func NewInterposer(original Dispatcher, config Config, metrics *Metrics, log *logging.Logger) *Interposer {
	if log == nil {
		log = logging.Nop()
	}
	return &Interposer{
		original: original,
		config:   config,
		metrics:  metrics,
		log:      log.WithComponent("interposer"),
	}
}

// Original returns the wrapped dispatcher.
func (ip *Interposer) Original() Dispatcher {
	return ip.original
}

// Scope returns the active scope, or nil.
func (ip *Interposer) Scope() *Scope {
	return ip.scope.Load()
}

// SetScope installs s as the active scope and returns the previous one.
// A nil scope makes every call pass through.
func (ip *Interposer) SetScope(s *Scope) *Scope {
	return ip.scope.Swap(s)
}

// Dispatch routes one call.
func (ip *Interposer) Dispatch(call *Call) {
	scope := ip.scope.Load()

	// Calls from a running handler's chain execute normally.
	if scope == nil || scope.guarded(call.Ctx()) {
		ip.passthrough(call)
		return
	}

	if !call.Bound() {
		ip.passthrough(call)
		return
	}

	entry := scope.registry.Find(call.Owner, call.Member)
	if entry == nil {
		ip.passthrough(call)
		return
	}

	if !call.HasReceiver() {
		if ip.log.Enabled(logging.LevelDebug) {
			ip.log.Debug("no receiver for %s, calling original", entry.Key())
		}
		ip.passthrough(call)
		return
	}

	ip.intercept(scope, entry, call)
}

func (ip *Interposer) passthrough(call *Call) {
	if ip.metrics != nil {
		ip.metrics.RecordPassthrough()
	}
	ip.original.Dispatch(call)
}

// intercept runs entry's handler in place of the call. The handler gets a
// guarded context; calls on other chains keep being intercepted while it runs.
func (ip *Interposer) intercept(scope *Scope, entry *Entry, call *Call) {
	var start time.Time
	if ip.metrics != nil {
		start = time.Now()
	}

	h := entry.Handler()
	retain(h)

	args := make([]any, len(call.Args))
	for i, arg := range call.Args {
		retain(arg)
		args[i] = arg
	}

	ctx := scope.guard(call.Ctx())
	failed := false
	defer func() {
		for _, arg := range args {
			release(arg)
		}
		release(h)

		if ip.metrics != nil {
			ip.metrics.RecordIntercept(entry.Key(), time.Since(start), failed)
		}
	}()

	if ip.log.Enabled(logging.LevelDebug) {
		ip.log.Debug("intercepting %s with %s", entry.Key(), TypeName(h))
	}

	result, err := ip.run(ctx, h, call, args)
	if err != nil {
		failed = true
		ip.fail(call, err)
		return
	}
	if result != nil {
		call.Result = result
	}
}

// run invokes the handler, converting a panic into an error when configured.
func (ip *Interposer) run(ctx context.Context, h Interceptor, call *Call, args []any) (result any, err error) {
	if ip.config.RecoverFromPanic {
		defer func() {
			if r := recover(); r != nil {
				result = nil
				err = &InterceptionError{Owner: call.Owner, Member: call.Member, Panic: r}
				if ip.metrics != nil {
					ip.metrics.RecordPanic(call.Key())
				}
			}
		}()
	}
	return h.Intercept(ctx, call.Receiver, call.Member, args)
}

// fail reports a failed interception. The call site only sees an empty result.
func (ip *Interposer) fail(call *Call, err error) {
	var ie *InterceptionError
	if !errors.As(err, &ie) {
		ie = &InterceptionError{Owner: call.Owner, Member: call.Member, Err: err}
	}

	ip.log.WithField("key", call.Key()).WarnErr(err, "interception failed for %s", call.Key())

	if ip.config.OnFailure != nil {
		ip.config.OnFailure(ie)
	}
}
