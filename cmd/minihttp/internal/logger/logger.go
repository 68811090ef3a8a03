package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger = newLogger(false, os.Stdout)
)

type ctxKey struct{}

func newLogger(debug bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source file information if in debug mode
		AddSource: debug,
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init replaces the global logger. debug enables debug level and source
// locations. A nil writer means stdout.
func Init(debug bool, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	l := newLogger(debug, w)

	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// NewContext returns a context whose *Context log calls carry args.
func NewContext(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, FromContext(ctx).With(args...))
}

// FromContext returns the logger attached to ctx, or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return current()
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }
func Info(msg string, args ...any)  { current().Info(msg, args...) }
func Warn(msg string, args ...any)  { current().Warn(msg, args...) }
func Error(msg string, args ...any) { current().Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}
