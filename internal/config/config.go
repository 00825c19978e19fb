// Package config loads the interpose TOML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/interpose/internal/intercept"
	"github.com/dshills/interpose/internal/logging"
)

// Environment overrides applied by ApplyEnv.
const (
	EnvScope    = "INTERPOSE_SCOPE"
	EnvLogLevel = logging.EnvLogLevel
)

// Config is the full interpose configuration.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Intercept InterceptConfig `toml:"intercept"`
	Lua       LuaConfig       `toml:"lua"`
	Bindings  []Binding       `toml:"bindings"`

	// dir is the directory of the loaded file; relative prelude paths
	// resolve against it.
	dir string
}

// LogConfig is the [log] section.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// InterceptConfig is the [intercept] section.
type InterceptConfig struct {
	Scope         string `toml:"scope"`
	RecoverPanics bool   `toml:"recover_panics"`
	Metrics       bool   `toml:"metrics"`
	MaxEntries    int    `toml:"max_entries"`
}

// LuaConfig is the [lua] section.
type LuaConfig struct {
	Timeout string   `toml:"timeout"`
	Prelude []string `toml:"prelude"`
}

// Binding is one [[bindings]] entry: owner::member is intercepted by the Lua
// global named Handler.
type Binding struct {
	Owner   string `toml:"owner"`
	Member  string `toml:"member"`
	Handler string `toml:"handler"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: string(logging.FormatConsole),
		},
		Intercept: InterceptConfig{
			Scope:         string(intercept.ScopeProcess),
			RecoverPanics: true,
		},
		Lua: LuaConfig{
			Timeout: "5s",
		},
	}
}

// Load reads the file at path over the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := decode(path, bytes.NewReader(data), cfg); err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// LoadFromReader reads TOML from r over the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode("<reader>", r, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(source string, r io.Reader, cfg *Config) error {
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		pe := &ParseError{Path: source, Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, pe.Column = de.Position()
		}
		return pe
	}
	return nil
}

// ApplyEnv overrides cfg from INTERPOSE_* environment variables.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvScope); ok && v != "" {
		c.Intercept.Scope = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks every setting and returns the first problem found.
func (c *Config) Validate() error {
	if !logging.ValidLevel(c.Log.Level) {
		return &ValidationError{Path: "log.level", Value: c.Log.Level, Message: "want debug, info, warn or error"}
	}
	switch logging.Format(c.Log.Format) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return &ValidationError{Path: "log.format", Value: c.Log.Format, Message: "want console or json"}
	}
	if !intercept.ScopeMode(c.Intercept.Scope).Valid() {
		return &ValidationError{Path: "intercept.scope", Value: c.Intercept.Scope, Message: "want process or unit"}
	}
	if c.Intercept.MaxEntries < 0 {
		return &ValidationError{Path: "intercept.max_entries", Value: c.Intercept.MaxEntries, Message: "must not be negative"}
	}
	if _, err := c.Timeout(); err != nil {
		return &ValidationError{Path: "lua.timeout", Value: c.Lua.Timeout, Message: err.Error()}
	}
	for i, b := range c.Bindings {
		path := fmt.Sprintf("bindings[%d]", i)
		switch {
		case !intercept.ValidName(b.Owner):
			return &ValidationError{Path: path + ".owner", Value: b.Owner, Message: "must be non-empty without ':'"}
		case !intercept.ValidName(b.Member):
			return &ValidationError{Path: path + ".member", Value: b.Member, Message: "must be non-empty without ':'"}
		case b.Handler == "":
			return &ValidationError{Path: path + ".handler", Value: b.Handler, Message: "must name a Lua global"}
		}
	}
	return nil
}

// Timeout returns the parsed Lua execution timeout. Empty means none.
func (c *Config) Timeout() (time.Duration, error) {
	if c.Lua.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Lua.Timeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

// PreludePaths returns the prelude files, relative ones resolved against the
// directory of the loaded configuration file.
func (c *Config) PreludePaths() []string {
	paths := make([]string, len(c.Lua.Prelude))
	for i, p := range c.Lua.Prelude {
		if !filepath.IsAbs(p) && c.dir != "" {
			p = filepath.Join(c.dir, p)
		}
		paths[i] = p
	}
	return paths
}

// LoggingConfig converts the [log] section for logging.New.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Log.Level)
	lc.Format = logging.Format(c.Log.Format)
	return lc
}

// InterceptConfig converts the [intercept] section for intercept.NewExtension.
func (c *Config) InterceptConfig() intercept.Config {
	ic := intercept.DefaultConfig().
		WithScope(intercept.ScopeMode(c.Intercept.Scope)).
		WithPanicRecovery(c.Intercept.RecoverPanics).
		WithMaxEntries(c.Intercept.MaxEntries)
	if c.Intercept.Metrics {
		ic = ic.WithMetrics()
	}
	return ic
}
