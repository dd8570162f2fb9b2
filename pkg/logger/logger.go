// Package logger provides a small context-aware logging facade over zap.
package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the logging interface.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	Named(name string) Logger
	With(fields ...Field) Logger
}

// Field is a structured key-value pair.
type Field = zap.Field

// Field constructors.
func String(key, val string) Field                 { return zap.String(key, val) }
func Int(key string, val int) Field                { return zap.Int(key, val) }
func Float64(key string, val float64) Field        { return zap.Float64(key, val) }
func Bool(key string, val bool) Field              { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Any(key string, val interface{}) Field        { return zap.Any(key, val) }
func Error(err error) Field                        { return zap.Error(err) }

type zapLogger struct {
	zap *zap.Logger
}

func (l *zapLogger) Named(name string) Logger { return &zapLogger{zap: l.zap.Named(name)} }

func (l *zapLogger) With(fields ...Field) Logger { return &zapLogger{zap: l.zap.With(fields...)} }

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.zap.Info(msg, withTrace(ctx, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.zap.Error(msg, withTrace(ctx, fields)...)
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.zap.Debug(msg, withTrace(ctx, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.zap.Warn(msg, withTrace(ctx, fields)...)
}

func (l *zapLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.zap.Fatal(msg, withTrace(ctx, fields)...)
}

// withTrace prepends trace correlation ids when ctx carries a valid span.
func withTrace(ctx context.Context, fields []Field) []Field {
	if ctx == nil {
		return fields
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return fields
	}
	out := make([]Field, 0, len(fields)+2)
	out = append(out, zap.String("trace_id", sc.TraceID().String()), zap.String("span_id", sc.SpanID().String()))
	return append(out, fields...)
}

var (
	mu     sync.RWMutex
	global Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init initializes the global logger. format is "json" or "console".
func Init(format string) error {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "text":
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	set(&zapLogger{zap: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))})
	return nil
}

// Wrap adapts an existing zap logger. Useful in tests with zaptest/observer.
func Wrap(z *zap.Logger) Logger { return &zapLogger{zap: z} }

// Nop returns a logger that discards everything.
func Nop() Logger { return &zapLogger{zap: zap.NewNop()} }

func set(l Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// Get returns the global logger.
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		panic("logger not initialized: call logger.Init first")
	}
	return global
}

// Current returns the global logger, or a no-op logger before Init.
func Current() Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return Nop()
	}
	return global
}

// Named creates a named child of the global logger.
func Named(name string) Logger {
	return Get().Named(name)
}

// Sync flushes buffered log entries.
func Sync() error {
	mu.RLock()
	l, ok := global.(*zapLogger)
	mu.RUnlock()
	if !ok {
		return nil
	}
	// stderr sync fails on some terminals; ignore EINVAL-style errors from it.
	_ = l.zap.Sync()
	return nil
}

// SetLevelString parses and sets the logging level.
// Accepts: debug, info, warn/warning, error (case-insensitive).
func SetLevelString(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "", "info":
		level.SetLevel(zapcore.InfoLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	default:
		return fmt.Errorf("unknown log level: %s", s)
	}
	return nil
}
