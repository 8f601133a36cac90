// Package logger wraps zap the way packages/shared/pkg/logger does for
// the orchestrator this project is grounded on: a small interface
// request handlers and pipeline stages log through, a context-free
// global for the handful of call sites that run before a request-scoped
// logger exists, and a With that attaches fields (build identity,
// problem) for the lifetime of one request.
package logger

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface pipeline stages and handlers log through.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...zapcore.Field)
	Info(ctx context.Context, msg string, fields ...zapcore.Field)
	Warn(ctx context.Context, msg string, fields ...zapcore.Field)
	Error(ctx context.Context, msg string, fields ...zapcore.Field)
	Log(ctx context.Context, lvl zapcore.Level, msg string, fields ...zapcore.Field)
	With(fields ...zapcore.Field) Logger
	Sync() error
}

type zapLogger struct {
	z *zap.Logger
}

// Config controls how NewLogger builds the underlying zap.Logger.
type Config struct {
	IsDebug bool
}

// NewLogger builds a Logger: a console encoder in debug mode (readable
// during local development), a JSON encoder otherwise (machine-parsable
// in a deployed, multi-tenant setting).
func NewLogger(cfg Config) (Logger, error) {
	var zcfg zap.Config
	if cfg.IsDebug {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	z, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	return &zapLogger{z: z}, nil
}

func (l *zapLogger) Debug(_ context.Context, msg string, fields ...zapcore.Field) {
	l.z.Debug(msg, fields...)
}

func (l *zapLogger) Info(_ context.Context, msg string, fields ...zapcore.Field) {
	l.z.Info(msg, fields...)
}

func (l *zapLogger) Warn(_ context.Context, msg string, fields ...zapcore.Field) {
	l.z.Warn(msg, fields...)
}

func (l *zapLogger) Error(_ context.Context, msg string, fields ...zapcore.Field) {
	l.z.Error(msg, fields...)
}

func (l *zapLogger) Log(_ context.Context, lvl zapcore.Level, msg string, fields ...zapcore.Field) {
	if ce := l.z.Check(lvl, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *zapLogger) With(fields ...zapcore.Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}

// noopLogger is what L() returns before ReplaceGlobals is ever called,
// so a package that logs during init doesn't need a nil check.
type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...zapcore.Field)             {}
func (noopLogger) Info(context.Context, string, ...zapcore.Field)              {}
func (noopLogger) Warn(context.Context, string, ...zapcore.Field)              {}
func (noopLogger) Error(context.Context, string, ...zapcore.Field)             {}
func (noopLogger) Log(context.Context, zapcore.Level, string, ...zapcore.Field) {}
func (n noopLogger) With(...zapcore.Field) Logger                             { return n }
func (noopLogger) Sync() error                                                 { return nil }

var (
	global   atomic.Value
	globalMu sync.Mutex
)

func init() {
	global.Store(Logger(noopLogger{}))
}

// L returns the process-wide global logger.
func L() Logger {
	return global.Load().(Logger)
}

// ReplaceGlobals installs l as the process-wide global logger, returning
// a function that restores the previous one (handy in tests).
func ReplaceGlobals(l Logger) func() {
	globalMu.Lock()
	defer globalMu.Unlock()

	prev := global.Load().(Logger)
	global.Store(l)
	return func() {
		globalMu.Lock()
		defer globalMu.Unlock()
		global.Store(prev)
	}
}
