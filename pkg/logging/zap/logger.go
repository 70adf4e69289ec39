// Package zap wraps go.uber.org/zap with the context-scoped logging
// convention used throughout this service: every call site passes a
// context.Context so symbol/correlation fields attached upstream ride
// along to the log line automatically.
package zap

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	SymbolKey        contextKey = "symbol"
)

var (
	global   *logger
	initOnce sync.Once
	level    zap.AtomicLevel
)

type logger struct {
	zl *zap.Logger
}

func Init(levelStr string, asJSON bool) error {
	initOnce.Do(func() {
		level = zap.NewAtomicLevelAt(parseLevel(levelStr))

		cfg := zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}

		var encoder zapcore.Encoder
		if asJSON {
			encoder = zapcore.NewJSONEncoder(cfg)
		} else {
			encoder = zapcore.NewConsoleEncoder(cfg)
		}

		core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
		global = &logger{zl: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}
	})

	return nil
}

func SetNop() { global = &logger{zl: zap.NewNop()} }

func Sync() error {
	if global != nil {
		return global.zl.Sync()
	}
	return nil
}

func ContextWithSymbol(ctx context.Context, symbol string) context.Context {
	return context.WithValue(ctx, SymbolKey, symbol)
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) { emit(ctx, zapcore.DebugLevel, msg, fields) }
func Info(ctx context.Context, msg string, fields ...zap.Field)  { emit(ctx, zapcore.InfoLevel, msg, fields) }
func Warn(ctx context.Context, msg string, fields ...zap.Field)  { emit(ctx, zapcore.WarnLevel, msg, fields) }
func Error(ctx context.Context, msg string, fields ...zap.Field) { emit(ctx, zapcore.ErrorLevel, msg, fields) }

func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	if global == nil {
		SetNop()
	}
	global.zl.With(fieldsFromContext(ctx)...).Fatal(msg, fields...)
}

func emit(ctx context.Context, lvl zapcore.Level, msg string, fields []zap.Field) {
	if global == nil {
		return
	}
	all := append(fieldsFromContext(ctx), fields...)
	if ce := global.zl.Check(lvl, msg); ce != nil {
		ce.Write(all...)
	}
}

func fieldsFromContext(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if ctx == nil {
		return fields
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok && id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if symbol, ok := ctx.Value(SymbolKey).(string); ok && symbol != "" {
		fields = append(fields, zap.String("symbol", symbol))
	}
	return fields
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
