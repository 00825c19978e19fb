package intercept

import (
	"sync"

	"github.com/dshills/interpose/internal/logging"
)

// Version is the interception layer version reported by Info.
const Version = "1.0.0"

// Extension binds interception to one Host. It owns the lifecycle: installing
// the Interposer at startup, allocating scopes, and restoring the host's
// original dispatcher at shutdown.
type Extension struct {
	mu sync.Mutex

	host    Host
	config  Config
	log     *logging.Logger
	metrics *Metrics

	interposer *Interposer
	started    bool
}

// ExtensionOption configures an Extension.
type ExtensionOption func(*Extension)

// WithLogger sets the logger used for lifecycle messages and warnings.
func WithLogger(l *logging.Logger) ExtensionOption {
	return func(e *Extension) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExtension creates an extension for host. Nothing is installed until
// OnStartup.
func NewExtension(host Host, config Config, opts ...ExtensionOption) *Extension {
	if !config.Scope.Valid() {
		config.Scope = ScopeProcess
	}

	e := &Extension{
		host:   host,
		config: config,
		log:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithComponent("intercept")

	if config.EnableMetrics {
		e.metrics = NewMetrics()
	}
	return e
}

// OnStartup captures the host's dispatcher, installs the Interposer and, in
// process mode, allocates the process-wide scope. An error means the
// extension must not be considered loaded.
func (e *Extension) OnStartup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	original := e.host.Dispatcher()
	if original == nil {
		return ErrNoDispatcher
	}

	ip := NewInterposer(original, e.config, e.metrics, e.log)
	if e.config.Scope == ScopeProcess {
		ip.SetScope(NewScope(ScopeProcess, e.config.MaxEntries))
	}

	e.host.SetDispatcher(ip)
	e.interposer = ip
	e.started = true

	e.log.Debug("interposer installed (scope=%s)", e.config.Scope)
	return nil
}

// OnShutdown restores the original dispatcher and releases any live scope.
func (e *Extension) OnShutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}

	e.host.SetDispatcher(e.interposer.Original())
	if scope := e.interposer.SetScope(nil); scope != nil {
		scope.close()
	}

	e.interposer = nil
	e.started = false
	e.log.Debug("interposer removed")
}

// OnUnitStart begins a unit of work. In unit mode it allocates the unit's
// scope; in process mode it only checks the extension is running.
func (e *Extension) OnUnitStart() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return ErrNotStarted
	}
	if e.config.Scope != ScopeUnit {
		return nil
	}
	if e.interposer.Scope() != nil {
		return ErrUnitActive
	}

	scope := NewScope(ScopeUnit, e.config.MaxEntries)
	e.interposer.SetScope(scope)
	e.log.Debug("unit %s started", scope.ID())
	return nil
}

// OnUnitEnd ends a unit of work. In unit mode the unit's scope and every
// entry in it are released.
func (e *Extension) OnUnitEnd() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started || e.config.Scope != ScopeUnit {
		return
	}
	if scope := e.interposer.SetScope(nil); scope != nil {
		scope.close()
		e.log.Debug("unit %s ended", scope.ID())
	}
}

// ResetBindings releases every entry in the active scope without ending it.
func (e *Extension) ResetBindings() {
	if scope := e.Scope(); scope != nil {
		scope.registry.Clear()
	}
}

// Register validates its inputs and binds handler to owner/member in the
// active scope.
func (e *Extension) Register(owner, member string, handler any) error {
	if !ValidName(owner) || !ValidName(member) {
		return &RegistrationError{Owner: owner, Member: member, Err: ErrInvalidName}
	}

	h, ok := handler.(Interceptor)
	if !ok || h == nil {
		return &RegistrationError{Owner: owner, Member: member, Err: ErrInvalidHandler}
	}

	scope := e.Scope()
	if scope == nil {
		return &RegistrationError{Owner: owner, Member: member, Err: ErrNoScope}
	}

	if err := scope.registry.Register(owner, member, h); err != nil {
		return err
	}

	e.log.Debug("registered %s -> %s", Key(owner, member), TypeName(h))
	return nil
}

// MethodIntercept is the boundary form of Register: it reports failure as
// false and a logged warning instead of an error.
func (e *Extension) MethodIntercept(owner, member string, handler any) bool {
	if err := e.Register(owner, member, handler); err != nil {
		e.log.WarnErr(err, "method_intercept rejected %s", Key(owner, member))
		return false
	}
	return true
}

// Scope returns the active scope, or nil when not started or between units.
func (e *Extension) Scope() *Scope {
	e.mu.Lock()
	ip := e.interposer
	e.mu.Unlock()

	if ip == nil {
		return nil
	}
	return ip.Scope()
}

// Started reports whether the interposer is installed.
func (e *Extension) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Config returns the extension configuration.
func (e *Extension) Config() Config {
	return e.config
}

// Metrics returns the metrics collector, or nil if metrics are disabled.
func (e *Extension) Metrics() *Metrics {
	return e.metrics
}
