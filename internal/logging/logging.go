// Package logging provides the structured logger shared by every interpose component.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Environment overrides applied by ApplyEnv.
const (
	EnvLogLevel  = "INTERPOSE_LOG_LEVEL"
	EnvLogFormat = "INTERPOSE_LOG_FORMAT"
)

// Level represents the severity level of a log message.
type Level int

const (
	// LevelDebug is for detailed tracing such as interposer decisions.
	LevelDebug Level = iota
	// LevelInfo is for general informational messages.
	LevelInfo
	// LevelWarn is for recoverable problems, including failed interceptions.
	LevelWarn
	// LevelError is for errors.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel parses a string into a Level. Unknown strings map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Format selects the output encoding.
type Format string

const (
	// FormatConsole writes human-readable lines.
	FormatConsole Format = "console"
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

// Config configures a Logger.
type Config struct {
	// Level is the minimum log level to output.
	Level Level
	// Format selects console or JSON output.
	Format Format
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Component is attached to every line when set.
	Component string
	// Timestamp adds a time field to each line.
	Timestamp bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    FormatConsole,
		Output:    os.Stderr,
		Component: "interpose",
		Timestamp: true,
	}
}

// ApplyEnv overrides cfg from INTERPOSE_LOG_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" && ValidLevel(v) {
		cfg.Level = ParseLevel(v)
	}
	switch strings.ToLower(os.Getenv(EnvLogFormat)) {
	case "json":
		cfg.Format = FormatJSON
	case "console":
		cfg.Format = FormatConsole
	}
}

// Logger provides leveled, structured logging backed by zerolog.
type Logger struct {
	zl       zerolog.Logger
	disabled bool
}

// New creates a logger with the given configuration.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != FormatJSON {
		cw := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
		if !cfg.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		out = cw
	}

	ctx := zerolog.New(out).Level(cfg.Level.zerolog()).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return &Logger{zl: ctx.Logger()}
}

// NewWithWriter creates a logger that writes plain console lines without
// timestamps to w. Used by tests that assert on output.
func NewWithWriter(w io.Writer, level Level) *Logger {
	return New(Config{
		Level:  level,
		Format: FormatConsole,
		Output: w,
	})
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), disabled: true}
}

// WithField returns a new logger with the given field added.
func (l *Logger) WithField(key string, value any) *Logger {
	if l.disabled {
		return l
	}
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a new logger with the given fields added.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l.disabled {
		return l
	}
	return &Logger{zl: l.zl.With().Fields(fields).Logger()}
}

// WithComponent returns a new logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	if l.disabled {
		return l
	}
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	if l.disabled {
		return false
	}
	return l.zl.GetLevel() <= level.zerolog()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, nil, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, nil, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, nil, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, nil, msg, args...)
}

// WarnErr logs a warning carrying err in the error field.
func (l *Logger) WarnErr(err error, msg string, args ...any) {
	l.log(LevelWarn, err, msg, args...)
}

func (l *Logger) log(level Level, err error, msg string, args ...any) {
	if l == nil || l.disabled {
		return
	}
	ev := l.zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	if len(args) > 0 {
		ev.Msgf(msg, args...)
		return
	}
	ev.Msg(msg)
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// Default returns the process-wide logger, creating it on first use.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		cfg := DefaultConfig()
		ApplyEnv(&cfg)
		defaultLogger = New(cfg)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
