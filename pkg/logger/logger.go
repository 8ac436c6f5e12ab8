// Package logger is the process-wide leveled logger.
//
// The printf-style helpers write through a zap SugaredLogger so the same
// output can be rendered as console text or JSON.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the verbosity threshold. Lower values are more verbose.
type Level int8

const (
	// LevelTrace enables per-action store logs and FSM inputs.
	LevelTrace Level = iota - 2
	// LevelDebug enables verbose diagnostics.
	LevelDebug
	// LevelInfo is the default.
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only errors.
	LevelError
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// ParseLevel parses a level name.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", raw)
	}
}

// zap has no trace level; trace lines are written at debug with a marker.
func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var (
	mu     sync.RWMutex
	level  = LevelInfo
	format = "text"
	out    io.Writer = os.Stderr
	atom             = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base             = build(out, format, atom)
	sugar            = base.Sugar()
)

func build(w io.Writer, fmtName string, lvl zap.AtomicLevel) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if fmtName == "json" {
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl))
}

func rebuild() {
	base = build(out, format, atom)
	sugar = base.Sugar()
}

// New builds a standalone zap logger. format is "text" or "json"; level is
// any name accepted by ParseLevel, or "none".
func New(logFormat, logLevel string) (*zap.Logger, error) {
	if logLevel == "none" {
		return zap.NewNop(), nil
	}
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	if logFormat != "text" && logFormat != "json" {
		return nil, fmt.Errorf("unknown log format: %s", logFormat)
	}
	return build(os.Stderr, logFormat, zap.NewAtomicLevelAt(lvl.zapLevel())), nil
}

// Configure sets the global format and level in one step.
func Configure(logFormat string, lvl Level) error {
	if logFormat != "text" && logFormat != "json" {
		return fmt.Errorf("unknown log format: %s", logFormat)
	}
	mu.Lock()
	defer mu.Unlock()
	format = logFormat
	level = lvl
	atom.SetLevel(lvl.zapLevel())
	rebuild()
	return nil
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

// SetLevel sets the global threshold.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
	atom.SetLevel(l.zapLevel())
}

// Enabled reports whether l would be emitted.
func Enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

// Zap returns the underlying structured logger.
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Scoped is a logger bound to one component name. It resolves the global
// logger on every call so it follows Configure and SetOutput.
type Scoped struct {
	name string
}

// Named returns a logger scoped to one component.
func Named(name string) Scoped {
	return Scoped{name: name}
}

func (s Scoped) sugared() *zap.SugaredLogger {
	return current().Named(s.name)
}

// Tracef logs at TRACE level.
func (s Scoped) Tracef(format string, args ...any) {
	if Enabled(LevelTrace) {
		s.sugared().Debugf("[trace] "+format, args...)
	}
}

// Debugf logs at DEBUG level.
func (s Scoped) Debugf(format string, args ...any) {
	if Enabled(LevelDebug) {
		s.sugared().Debugf(format, args...)
	}
}

// Infof logs at INFO level.
func (s Scoped) Infof(format string, args ...any) {
	if Enabled(LevelInfo) {
		s.sugared().Infof(format, args...)
	}
}

// Warnf logs at WARN level.
func (s Scoped) Warnf(format string, args ...any) {
	if Enabled(LevelWarn) {
		s.sugared().Warnf(format, args...)
	}
}

// Warnw logs msg at WARN level with structured fields.
func (s Scoped) Warnw(msg string, keysAndValues ...any) {
	if Enabled(LevelWarn) {
		s.sugared().Warnw(msg, keysAndValues...)
	}
}

// Errorf logs at ERROR level.
func (s Scoped) Errorf(format string, args ...any) {
	s.sugared().Errorf(format, args...)
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) {
	if !Enabled(LevelTrace) {
		return
	}
	current().Debugf("[trace] "+format, args...)
}

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) {
	if !Enabled(LevelDebug) {
		return
	}
	current().Debugf(format, args...)
}

// Infof logs at INFO level.
func Infof(format string, args ...any) {
	if !Enabled(LevelInfo) {
		return
	}
	current().Infof(format, args...)
}

// Warnf logs at WARN level.
func Warnf(format string, args ...any) {
	if !Enabled(LevelWarn) {
		return
	}
	current().Warnf(format, args...)
}

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) {
	current().Errorf(format, args...)
}
