package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/interpose/internal/config"
	"github.com/dshills/interpose/internal/intercept"
	"github.com/dshills/interpose/internal/logging"
	"github.com/dshills/interpose/internal/luahost"
)

const prelude = `
Calc = class("Calc", { add = function(self, a, b) return a + b end })
AddHandler = {
	intercept = function(self, recv, member, args)
		return (args[1] + args[2]) * 100
	end,
}
`

const script = `print(Calc.new():add(2, 3))`

// writeFiles writes name -> content into a temp dir and returns the paths.
func writeFiles(t *testing.T, files map[string]string) map[string]string {
	t.Helper()
	dir := t.TempDir()
	paths := make(map[string]string, len(files))
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		paths[name] = p
	}
	return paths
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newApp(t *testing.T, scope intercept.ScopeMode, opts Options) (*Application, map[string]string, *syncBuffer) {
	t.Helper()
	paths := writeFiles(t, map[string]string{"prelude.lua": prelude, "main.lua": script})

	cfg := config.Default()
	cfg.Intercept.Scope = string(scope)
	cfg.Lua.Prelude = []string{paths["prelude.lua"]}
	cfg.Bindings = []config.Binding{{Owner: "Calc", Member: "add", Handler: "AddHandler"}}

	out := &syncBuffer{}
	opts.Output = out
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	a, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	t.Cleanup(a.Shutdown)
	return a, paths, out
}

func TestRunScriptProcessScope(t *testing.T) {
	a, paths, out := newApp(t, intercept.ScopeProcess, Options{})

	if err := a.RunScript(context.Background(), paths["main.lua"]); err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if got := out.String(); got != "500\n" {
		t.Errorf("output = %q, want 500", got)
	}

	entries := a.Extension().Entries()
	if len(entries) != 1 || entries[0].Key() != "Calc::add" {
		t.Errorf("Entries() = %+v, want the Calc::add binding to persist", entries)
	}

	// A second run replays prelude and bindings over the same state.
	if err := a.RunScript(context.Background(), paths["main.lua"]); err != nil {
		t.Fatalf("second RunScript() error = %v", err)
	}
	if got := out.String(); got != "500\n500\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunScriptUnitScope(t *testing.T) {
	var during []intercept.EntryInfo
	a, paths, out := newApp(t, intercept.ScopeUnit, Options{
		AfterScript: func(_ context.Context, ext *intercept.Extension) error {
			during = ext.Entries()
			return nil
		},
	})

	for i := 0; i < 2; i++ {
		if err := a.RunScript(context.Background(), paths["main.lua"]); err != nil {
			t.Fatalf("RunScript() #%d error = %v", i, err)
		}
	}
	if got := out.String(); got != "500\n500\n" {
		t.Errorf("output = %q", got)
	}
	if len(during) != 1 {
		t.Errorf("entries inside the unit = %+v, want 1", during)
	}
	if entries := a.Extension().Entries(); entries != nil {
		t.Errorf("entries after the unit = %+v, want none", entries)
	}
	if v := a.Runtime().GetGlobal("Calc"); v != nil {
		t.Errorf("Calc survived the unit: %v", v)
	}
}

func TestRunScriptErrors(t *testing.T) {
	t.Run("missing handler", func(t *testing.T) {
		a, paths, _ := newApp(t, intercept.ScopeProcess, Options{})
		a.cfg.Bindings = []config.Binding{{Owner: "Calc", Member: "add", Handler: "NoSuchHandler"}}

		err := a.RunScript(context.Background(), paths["main.lua"])
		var re *RunError
		if !errors.As(err, &re) || re.Op != "binding" || re.Target != "Calc::add" {
			t.Fatalf("error = %v, want binding RunError", err)
		}
		if !errors.Is(err, luahost.ErrNotHandler) {
			t.Errorf("error = %v, want ErrNotHandler", err)
		}
	})

	t.Run("script error", func(t *testing.T) {
		a, _, _ := newApp(t, intercept.ScopeProcess, Options{})
		bad := writeFiles(t, map[string]string{"bad.lua": `error("broken script")`})["bad.lua"]

		err := a.RunScript(context.Background(), bad)
		var re *RunError
		if !errors.As(err, &re) || re.Op != "script" || !strings.Contains(err.Error(), "broken script") {
			t.Errorf("error = %v, want script RunError", err)
		}
	})

	t.Run("hook error", func(t *testing.T) {
		hookErr := errors.New("hook failed")
		a, paths, _ := newApp(t, intercept.ScopeUnit, Options{
			AfterScript: func(context.Context, *intercept.Extension) error { return hookErr },
		})
		if err := a.RunScript(context.Background(), paths["main.lua"]); !errors.Is(err, hookErr) {
			t.Errorf("error = %v, want hook error", err)
		}
		// The unit still ended.
		if a.Extension().Scope() != nil {
			t.Error("unit scope left active after a failed run")
		}
	})
}

func TestLifecycle(t *testing.T) {
	a, err := New(config.Default(), Options{Logger: logging.Nop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := a.RunScript(context.Background(), "main.lua"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("RunScript before Startup error = %v, want ErrNotRunning", err)
	}
	if err := a.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	if err := a.Startup(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Startup() error = %v, want ErrAlreadyRunning", err)
	}
	if !a.Extension().Started() {
		t.Error("extension not started")
	}

	a.Shutdown()
	a.Shutdown()
	if a.Extension().Started() {
		t.Error("extension still started after Shutdown")
	}
	if !a.Runtime().IsClosed() {
		t.Error("runtime still open after Shutdown")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Intercept.Scope = "request"

	_, err := New(cfg, Options{})
	var ie *InitError
	if !errors.As(err, &ie) || ie.Component != "config" {
		t.Errorf("error = %v, want config InitError", err)
	}
}

func TestWatchReruns(t *testing.T) {
	a, paths, out := newApp(t, intercept.ScopeUnit, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs := make(chan error, 10)
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(ctx, paths["main.lua"], func(err error) { runs <- err })
	}()

	waitRun := func() {
		t.Helper()
		select {
		case err := <-runs:
			if err != nil {
				t.Fatalf("run error = %v", err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for a run")
		}
	}

	waitRun()
	if err := os.WriteFile(paths["main.lua"], []byte(`print(Calc.new():add(1, 1))`), 0o644); err != nil {
		t.Fatal(err)
	}
	waitRun()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
	if got := out.String(); got != "500\n200\n" {
		t.Errorf("output = %q, want 500 then 200", got)
	}
}
