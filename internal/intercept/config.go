package intercept

// Config holds interception options.
type Config struct {
	// Scope selects process-wide or per-unit-of-work registries.
	Scope ScopeMode

	// RecoverFromPanic converts handler panics into interception failures.
	RecoverFromPanic bool

	// EnableMetrics enables interception counters and timings.
	EnableMetrics bool

	// MaxEntries bounds the entries a registry may hold. Zero means no limit.
	MaxEntries int

	// OnFailure, if set, is called after a failed interception has been logged.
	OnFailure func(err *InterceptionError)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Scope:            ScopeProcess,
		RecoverFromPanic: true,
		EnableMetrics:    false,
		MaxEntries:       0,
	}
}

// WithScope returns a copy of the config with the scope mode set.
func (c Config) WithScope(mode ScopeMode) Config {
	c.Scope = mode
	return c
}

// WithMetrics returns a copy of the config with metrics enabled.
func (c Config) WithMetrics() Config {
	c.EnableMetrics = true
	return c
}

// WithPanicRecovery returns a copy of the config with panic recovery set.
func (c Config) WithPanicRecovery(recover bool) Config {
	c.RecoverFromPanic = recover
	return c
}

// WithMaxEntries returns a copy of the config with the entry bound set.
func (c Config) WithMaxEntries(n int) Config {
	c.MaxEntries = n
	return c
}

// WithFailureHook returns a copy of the config with OnFailure set.
func (c Config) WithFailureHook(fn func(err *InterceptionError)) Config {
	c.OnFailure = fn
	return c
}
