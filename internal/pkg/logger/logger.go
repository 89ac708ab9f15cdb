package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	globalLogger *slog.Logger
	once         sync.Once
)

// Options controls how the global logger is built.
type Options struct {
	Level   string
	JSON    bool
	Service string
	Output  io.Writer
}

func Init(level string) {
	InitWithOptions(Options{Level: level, JSON: true})
}

// InitWithOptions builds the global logger exactly once. The CLI uses a text
// handler on stderr, the companion server keeps JSON on stdout.
func InitWithOptions(opts Options) {
	once.Do(func() {
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

		var handler slog.Handler
		if opts.JSON {
			handler = slog.NewJSONHandler(out, handlerOpts)
		} else {
			handler = slog.NewTextHandler(out, handlerOpts)
		}
		globalLogger = slog.New(handler)
		if opts.Service != "" {
			globalLogger = globalLogger.With("service", opts.Service)
		}
		slog.SetDefault(globalLogger)
	})
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the global logger instance
func Get() *slog.Logger {
	if globalLogger == nil {
		Init("info")
	}
	return globalLogger
}

func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func With(args ...any) *slog.Logger {
	return Get().With(args...)
}

func LogError(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	args = append(args, slog.String("error", err.Error()))
	Get().ErrorContext(ctx, msg, args...)
}
