package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides formatted logging methods on top of a zap SugaredLogger.
type Logger struct {
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
}

// Log is the global logger instance
var Log = &Logger{sugar: newZap("info", "console").Sugar()}

// Configure replaces the global logger's backend with one at the given level
// ("debug", "info", "warn", "error") and format ("json" or "console").
func Configure(level, format string) error {
	if _, err := zapcore.ParseLevel(strings.ToLower(level)); err != nil && level != "" {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	Log.set(newZap(level, format))
	return nil
}

// SetZap swaps the global backend. Tests use it with zaptest/observer.
func SetZap(z *zap.Logger) {
	Log.set(z)
}

// Zap returns the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sugar.Desugar()
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.Zap().Sync()
}

// Infof logs an info level message with formatting
func (l *Logger) Infof(format string, args ...any) {
	l.get().Infof(format, args...)
}

// Warnf logs a warning level message with formatting
func (l *Logger) Warnf(format string, args ...any) {
	l.get().Warnf(format, args...)
}

// Errorf logs an error level message with formatting
func (l *Logger) Errorf(format string, args ...any) {
	l.get().Errorf(format, args...)
}

// Debugf logs a debug level message with formatting
func (l *Logger) Debugf(format string, args ...any) {
	l.get().Debugf(format, args...)
}

// Infow logs an info level message with structured key/value pairs
func (l *Logger) Infow(msg string, keysAndValues ...any) {
	l.get().Infow(msg, keysAndValues...)
}

// Warnw logs a warning level message with structured key/value pairs
func (l *Logger) Warnw(msg string, keysAndValues ...any) {
	l.get().Warnw(msg, keysAndValues...)
}

func (l *Logger) get() *zap.SugaredLogger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sugar
}

func (l *Logger) set(z *zap.Logger) {
	l.mu.Lock()
	l.sugar = z.Sugar()
	l.mu.Unlock()
}

func newZap(level, format string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lvl)
	return zap.New(core)
}
