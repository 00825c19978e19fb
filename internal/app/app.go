// Package app wires configuration, logging, the Lua runtime and the
// interception extension together and runs scripts as units of work.
package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dshills/interpose/internal/config"
	"github.com/dshills/interpose/internal/intercept"
	"github.com/dshills/interpose/internal/logging"
	"github.com/dshills/interpose/internal/luahost"
	"github.com/dshills/interpose/internal/watch"
)

// UnitHook runs at the end of a script's unit of work, while its bindings
// are still live.
type UnitHook func(ctx context.Context, ext *intercept.Extension) error

// Options configures the application.
type Options struct {
	// Output receives Lua print output. Defaults to os.Stdout.
	Output io.Writer

	// Logger overrides the logger built from the configuration.
	Logger *logging.Logger

	// AfterScript, if set, runs after each script inside its unit.
	AfterScript UnitHook
}

// Application owns one Lua runtime and the extension installed on it.
type Application struct {
	mu sync.Mutex

	cfg     *config.Config
	log     *logging.Logger
	runtime *luahost.Runtime
	ext     *intercept.Extension

	running atomic.Bool
	opts    Options
}

// New validates cfg and builds the application. Nothing is installed until
// Startup.
func New(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}
	timeout, _ := cfg.Timeout()

	log := opts.Logger
	if log == nil {
		log = logging.New(cfg.LoggingConfig())
	}

	rt := luahost.New(
		luahost.WithTimeout(timeout),
		luahost.WithOutput(opts.Output),
		luahost.WithLogger(log),
	)
	ext := intercept.NewExtension(rt, cfg.InterceptConfig(), intercept.WithLogger(log))

	return &Application{
		cfg:     cfg,
		log:     log.WithComponent("app"),
		runtime: rt,
		ext:     ext,
		opts:    opts,
	}, nil
}

// Startup installs interception and exposes the registration API to scripts.
func (app *Application) Startup() error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if err := app.ext.OnStartup(); err != nil {
		app.running.Store(false)
		return &InitError{Component: "intercept", Err: err}
	}
	app.runtime.Attach(app.ext)
	app.log.Debug("started (scope=%s)", app.ext.Config().Scope)
	return nil
}

// RunScript runs path as one unit of work: the prelude files, then the
// configured bindings, then the script itself.
func (app *Application) RunScript(ctx context.Context, path string) error {
	if !app.running.Load() {
		return ErrNotRunning
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if err := app.ext.OnUnitStart(); err != nil {
		return &RunError{Op: "unit", Err: err}
	}
	defer app.endUnit()

	for _, p := range app.cfg.PreludePaths() {
		if err := app.runtime.DoFile(ctx, p); err != nil {
			return &RunError{Op: "prelude", Target: p, Err: err}
		}
	}

	if err := app.applyBindings(); err != nil {
		return err
	}

	if err := app.runtime.DoFile(ctx, path); err != nil {
		return &RunError{Op: "script", Target: path, Err: err}
	}

	if app.opts.AfterScript != nil {
		if err := app.opts.AfterScript(ctx, app.ext); err != nil {
			return &RunError{Op: "hook", Err: err}
		}
	}
	return nil
}

// applyBindings registers every [[bindings]] entry against the Lua global it
// names.
func (app *Application) applyBindings() error {
	for _, b := range app.cfg.Bindings {
		key := intercept.Key(b.Owner, b.Member)
		h, err := app.runtime.HandlerFor(b.Handler)
		if err != nil {
			return &RunError{Op: "binding", Target: key, Err: err}
		}
		if err := app.ext.Register(b.Owner, b.Member, h); err != nil {
			return &RunError{Op: "binding", Target: key, Err: err}
		}
		app.log.Debug("bound %s to %s", key, b.Handler)
	}
	return nil
}

// endUnit closes the unit. In unit mode the Lua state is reset too, so no
// script state survives into the next unit.
func (app *Application) endUnit() {
	app.ext.OnUnitEnd()
	if app.ext.Config().Scope == intercept.ScopeUnit {
		if err := app.runtime.Reset(); err != nil {
			app.log.WarnErr(err, "resetting lua state")
		}
	}
}

// Watch runs path, then reruns it whenever it or a prelude file changes,
// until ctx is done. Run failures are reported to onRun and do not stop the
// watch.
func (app *Application) Watch(ctx context.Context, path string, onRun func(error)) error {
	w, err := watch.New(watch.WithLogger(app.log))
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(append([]string{path}, app.cfg.PreludePaths()...)...); err != nil {
		return err
	}

	run := func() {
		err := app.RunScript(ctx, path)
		if onRun != nil {
			onRun(err)
		}
	}

	run()
	err = w.Run(ctx, func(changed string) {
		app.log.Info("%s changed, rerunning", changed)
		run()
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Shutdown removes interception and closes the Lua runtime.
func (app *Application) Shutdown() {
	if !app.running.CompareAndSwap(true, false) {
		return
	}
	app.ext.OnShutdown()
	if err := app.runtime.Close(); err != nil {
		app.log.WarnErr(err, "closing lua runtime")
	}
	app.log.Debug("shut down")
}

// Extension returns the interception extension.
func (app *Application) Extension() *intercept.Extension {
	return app.ext
}

// Runtime returns the Lua runtime.
func (app *Application) Runtime() *luahost.Runtime {
	return app.runtime
}

// Config returns the application configuration.
func (app *Application) Config() *config.Config {
	return app.cfg
}
