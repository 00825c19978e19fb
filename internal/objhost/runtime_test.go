package objhost_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dshills/interpose/internal/intercept"
	"github.com/dshills/interpose/internal/logging"
	"github.com/dshills/interpose/internal/objhost"
)

type Calc struct {
	calls int
}

func (c *Calc) Add(a, b int) int {
	c.calls++
	return a + b
}

func (c *Calc) Div(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (c *Calc) Sum(nums ...int) int {
	total := 0
	for _, n := range nums {
		total += n
	}
	return total
}

type Logger struct {
	lines []string
}

func (l *Logger) Log(msg string) {
	l.lines = append(l.lines, msg)
}

func newRuntime(t *testing.T) *objhost.Runtime {
	t.Helper()
	rt := objhost.New()
	if err := rt.DefineClass("Calc", &Calc{}); err != nil {
		t.Fatalf("DefineClass() error = %v", err)
	}
	if err := rt.DefineClass("Logger", Logger{}); err != nil {
		t.Fatalf("DefineClass() error = %v", err)
	}
	return rt
}

func TestRuntimeInvoke(t *testing.T) {
	rt := newRuntime(t)
	c := &Calc{}

	got, err := rt.Invoke(c, "Add", 2, 3)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != 5 {
		t.Errorf("Add(2, 3) = %v, want 5", got)
	}

	got, err = rt.Invoke(c, "Div", 1, 4)
	if err != nil || got != 0.25 {
		t.Errorf("Div(1, 4) = %v, %v; want 0.25", got, err)
	}

	if _, err := rt.Invoke(c, "Div", 1, 0); err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("Div(1, 0) error = %v, want division by zero", err)
	}

	got, err = rt.Invoke(c, "Sum", 1, 2, 3)
	if err != nil || got != 6 {
		t.Errorf("Sum(1, 2, 3) = %v, %v; want 6", got, err)
	}
}

func TestRuntimeErrors(t *testing.T) {
	rt := newRuntime(t)
	c := &Calc{}
	_ = rt.DefineFunc("Add", func(a, b int) int { return a + b })

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"unknown method", func() error { _, err := rt.Invoke(c, "Mul", 1, 2); return err }, objhost.ErrUnknownMember},
		{"nil receiver", func() error { _, err := rt.Invoke(nil, "Add", 1, 2); return err }, objhost.ErrUnknownMember},
		{"arity", func() error { _, err := rt.Invoke(c, "Add", 1); return err }, objhost.ErrArity},
		{"arg type", func() error { _, err := rt.Invoke(c, "Add", "1", 2); return err }, objhost.ErrArgType},
		{"unknown static", func() error { _, err := rt.InvokeStatic("Calc", "Create"); return err }, objhost.ErrUnknownMember},
		{"unknown func", func() error { _, err := rt.CallFunc("missing"); return err }, objhost.ErrUnknownMember},
		{"define non-func", func() error { return rt.DefineFunc("x", 42) }, objhost.ErrNotFunc},
		{"define empty class", func() error { return rt.DefineClass("", &Calc{}) }, objhost.ErrInvalidClass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRuntimeClassOf(t *testing.T) {
	rt := newRuntime(t)

	if got := rt.ClassOf(&Calc{}); got != "Calc" {
		t.Errorf("ClassOf(*Calc) = %q, want Calc", got)
	}
	if got := rt.ClassOf(&Logger{}); got != "Logger" {
		t.Errorf("ClassOf(*Logger) = %q, want Logger", got)
	}
	if got := rt.ClassOf(&bytes.Buffer{}); got != "bytes.Buffer" {
		t.Errorf("ClassOf(*bytes.Buffer) = %q, want bytes.Buffer", got)
	}
}

// startExtension installs interception on rt.
func startExtension(t *testing.T, rt *objhost.Runtime, log *logging.Logger) *intercept.Extension {
	t.Helper()
	ext := intercept.NewExtension(rt, intercept.DefaultConfig(), intercept.WithLogger(log))
	if err := ext.OnStartup(); err != nil {
		t.Fatalf("OnStartup() error = %v", err)
	}
	t.Cleanup(ext.OnShutdown)
	return ext
}

func TestInterceptCalcAdd(t *testing.T) {
	rt := newRuntime(t)
	ext := startExtension(t, rt, nil)

	ok := ext.MethodIntercept("Calc", "Add", intercept.InterceptorFunc(func(ctx context.Context, recv any, member string, args []any) (any, error) {
		return args[0].(int) + args[1].(int), nil
	}))
	if !ok {
		t.Fatal("MethodIntercept() = false")
	}

	c := &Calc{}
	got, err := rt.Invoke(c, "Add", 2, 3)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != 5 {
		t.Errorf("Add(2, 3) = %v, want 5", got)
	}
	if c.calls != 0 {
		t.Errorf("original Add ran %d times, want 0", c.calls)
	}
}

func TestInterceptStaticSkipped(t *testing.T) {
	rt := newRuntime(t)
	var saved []int
	if err := rt.DefineStatic("Logger", "Save", func(n int) string {
		saved = append(saved, n)
		return "saved"
	}); err != nil {
		t.Fatalf("DefineStatic() error = %v", err)
	}
	ext := startExtension(t, rt, nil)

	handled := false
	ext.MethodIntercept("Logger", "Save", intercept.InterceptorFunc(func(context.Context, any, string, []any) (any, error) {
		handled = true
		return nil, nil
	}))

	got, err := rt.InvokeStatic("Logger", "Save", 42)
	if err != nil {
		t.Fatalf("InvokeStatic() error = %v", err)
	}
	if got != "saved" || handled {
		t.Errorf("result = %v, handled = %v; want saved, false", got, handled)
	}
	if len(saved) != 1 || saved[0] != 42 {
		t.Errorf("saved = %v, want [42]", saved)
	}
}

func TestInterceptFreeFunctionSkipped(t *testing.T) {
	rt := newRuntime(t)
	_ = rt.DefineFunc("sayHello", func(name string) string { return "hello " + name })
	ext := startExtension(t, rt, nil)
	ext.MethodIntercept("main", "sayHello", intercept.InterceptorFunc(func(context.Context, any, string, []any) (any, error) {
		return "intercepted", nil
	}))

	got, err := rt.CallFunc("sayHello", "World")
	if err != nil || got != "hello World" {
		t.Errorf("sayHello = %v, %v; want hello World", got, err)
	}
}

// A logging handler that forwards to the intercepted method, the classic
// around-advice shape.
func TestInterceptAroundAdvice(t *testing.T) {
	rt := newRuntime(t)
	ext := startExtension(t, rt, nil)
	audit := &Logger{}

	ext.MethodIntercept("Calc", "Add", intercept.InterceptorFunc(func(ctx context.Context, recv any, member string, args []any) (any, error) {
		_, _ = rt.InvokeContext(ctx, audit, "Log", "before "+member)
		result, err := rt.InvokeContext(ctx, recv, member, args...)
		_, _ = rt.InvokeContext(ctx, audit, "Log", "after "+member)
		return result, err
	}))
	// Logger.Log is itself intercepted, but not while the Calc handler runs.
	ext.MethodIntercept("Logger", "Log", intercept.InterceptorFunc(func(context.Context, any, string, []any) (any, error) {
		t.Error("Logger.Log intercepted inside another handler")
		return nil, nil
	}))

	c := &Calc{}
	got, err := rt.Invoke(c, "Add", 4, 5)
	if err != nil || got != 9 {
		t.Fatalf("Add(4, 5) = %v, %v; want 9", got, err)
	}
	if c.calls != 1 {
		t.Errorf("original Add ran %d times, want 1", c.calls)
	}
	want := []string{"before Add", "after Add"}
	if strings.Join(audit.lines, ",") != strings.Join(want, ",") {
		t.Errorf("audit = %v, want %v", audit.lines, want)
	}
}

func TestInterceptHandlerErrorIsWarning(t *testing.T) {
	var buf bytes.Buffer
	rt := newRuntime(t)
	ext := startExtension(t, rt, logging.NewWithWriter(&buf, logging.LevelWarn))
	ext.MethodIntercept("Calc", "Add", intercept.InterceptorFunc(func(context.Context, any, string, []any) (any, error) {
		return nil, errors.New("handler broke")
	}))

	got, err := rt.Invoke(&Calc{}, "Add", 1, 2)
	if err != nil {
		t.Errorf("Invoke() error = %v, want nil (failure is not propagated)", err)
	}
	if got != nil {
		t.Errorf("result = %v, want nil", got)
	}
	if !strings.Contains(buf.String(), "interception failed for Calc::Add") {
		t.Errorf("log = %q, want interception warning", buf.String())
	}
}

func TestInterceptNilPointerReceiverPassesThrough(t *testing.T) {
	rt := newRuntime(t)
	ext := startExtension(t, rt, nil)
	handled := false
	ext.MethodIntercept("Calc", "Sum", intercept.InterceptorFunc(func(context.Context, any, string, []any) (any, error) {
		handled = true
		return -1, nil
	}))

	got, err := rt.Invoke((*Calc)(nil), "Sum", 1, 2)
	if err != nil || got != 3 {
		t.Errorf("Sum on nil *Calc = %v, %v; want 3", got, err)
	}
	if handled {
		t.Error("handler ran for a nil pointer receiver")
	}
}

// Calls on other goroutines keep being intercepted while a handler runs.
func TestInterceptConcurrentCallers(t *testing.T) {
	rt := newRuntime(t)
	ext := startExtension(t, rt, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	ext.MethodIntercept("Calc", "Add", intercept.InterceptorFunc(func(ctx context.Context, recv any, member string, args []any) (any, error) {
		if args[0] == 0 {
			close(entered)
			<-release
			return rt.InvokeContext(ctx, recv, member, args...)
		}
		return 99, nil
	}))

	type outcome struct {
		result any
		err    error
	}
	blocked := make(chan outcome, 1)
	first := &Calc{}
	go func() {
		got, err := rt.Invoke(first, "Add", 0, 7)
		blocked <- outcome{got, err}
	}()
	<-entered

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &Calc{}
			got, err := rt.Invoke(c, "Add", 2, 3)
			if err != nil || got != 99 {
				t.Errorf("Add(2, 3) beside a running handler = %v, %v; want 99", got, err)
			}
			if c.calls != 0 {
				t.Errorf("original Add ran %d times, want 0", c.calls)
			}
		}()
	}
	wg.Wait()

	close(release)
	out := <-blocked
	if out.err != nil || out.result != 7 {
		t.Errorf("Add(0, 7) = %v, %v; want 7 from the original", out.result, out.err)
	}
	if first.calls != 1 {
		t.Errorf("original Add ran %d times for the blocked call, want 1", first.calls)
	}
}
