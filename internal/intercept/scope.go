package intercept

import (
	"context"

	"github.com/google/uuid"
)

// ScopeMode selects how long a Scope lives.
type ScopeMode string

const (
	// ScopeProcess keeps one scope from OnStartup to OnShutdown.
	ScopeProcess ScopeMode = "process"
	// ScopeUnit allocates a fresh scope for every unit of work.
	ScopeUnit ScopeMode = "unit"
)

// Valid reports whether m is a known mode.
func (m ScopeMode) Valid() bool {
	return m == ScopeProcess || m == ScopeUnit
}

// Scope holds the state interception needs for one process or one unit of
// work. A Scope is safe for concurrent use.
//
// The guard is not stored in the Scope: it travels in the context handed to a
// running handler, so only that handler's own call chain is shielded from
// interception.
type Scope struct {
	id       string
	mode     ScopeMode
	registry *Registry
}

type guardKey struct{}

// NewScope creates a scope with an empty registry.
func NewScope(mode ScopeMode, maxEntries int) *Scope {
	return &Scope{
		id:       uuid.NewString(),
		mode:     mode,
		registry: NewRegistry(maxEntries),
	}
}

// ID returns the scope's unique id.
func (s *Scope) ID() string {
	return s.id
}

// Mode returns the scope's lifetime mode.
func (s *Scope) Mode() ScopeMode {
	return s.mode
}

// Registry returns the scope's registry.
func (s *Scope) Registry() *Registry {
	return s.registry
}

// guard returns ctx marked as running a handler of s.
func (s *Scope) guard(ctx context.Context) context.Context {
	return context.WithValue(ctx, guardKey{}, s)
}

// guarded reports whether ctx belongs to a handler running in s.
func (s *Scope) guarded(ctx context.Context) bool {
	g, _ := ctx.Value(guardKey{}).(*Scope)
	return g == s
}

// close releases every entry.
func (s *Scope) close() {
	s.registry.Clear()
}

// Intercepting reports whether ctx was derived from a handler's context.
func Intercepting(ctx context.Context) bool {
	return ctx.Value(guardKey{}) != nil
}
