// Package logger is the process-wide leveled logger used by the chat client.
//
// It keeps the printf-style helpers used throughout the codebase and routes
// them through a zap sugared logger so level filtering and output formatting
// are handled in one place.
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

// Level is the verbosity threshold used by the logger.
//
// Lower values are more verbose.
type Level int8

const (
	// LevelTrace enables extremely verbose logs (every STOMP frame, reducer
	// inputs, etc).
	LevelTrace Level = Level(zapcore.DebugLevel) - 1
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug = Level(zapcore.DebugLevel)
	// LevelInfo enables informational logs (default).
	LevelInfo = Level(zapcore.InfoLevel)
	// LevelWarn enables only warnings and errors.
	LevelWarn = Level(zapcore.WarnLevel)
	// LevelError enables only error logs.
	LevelError = Level(zapcore.ErrorLevel)
)

// String returns the lower-case level name.
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

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar = build(os.Stderr)
)

// ParseLevel parses a log level string into a Level.
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
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	mu.Lock()
	defer mu.Unlock()
	sugar = build(w)
}

// SetLevel sets the global log level threshold.
func SetLevel(l Level) {
	level.SetLevel(zapcore.Level(l))
}

// CurrentLevel returns the active threshold.
func CurrentLevel() Level {
	return Level(level.Level())
}

// Enabled reports whether a level would be emitted by the current
// configuration.
func Enabled(l Level) bool {
	return level.Enabled(zapcore.Level(l))
}

// Sync flushes buffered output.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return sugar.Sync()
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { logf(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

func logf(l Level, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	mu.RLock()
	s := sugar
	mu.RUnlock()
	s.Logf(zapcore.Level(l), format, args...)
}

func build(w io.Writer) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = encodeLevel
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000")
	encCfg.CallerKey = ""

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core).Sugar()
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if Level(l) == LevelTrace {
		enc.AppendString("TRACE")
		return
	}
	enc.AppendString(l.CapitalString())
}
