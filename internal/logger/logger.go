// Package logger is the process-wide structured logger. It wraps log/slog
// behind package-level functions so any package can log without threading a
// logger through constructors.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Config holds logger configuration.
type Config struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"` // stdout, stderr, or file path
}

var (
	level = new(slog.LevelVar)

	mu      sync.RWMutex
	slogger *slog.Logger
	output  io.Writer = os.Stdout
	format            = "text"
	color             = false
	closer  io.Closer
)

func init() {
	color = isTerminal(os.Stdout.Fd())
	reconfigure()
}

// reconfigure rebuilds the handler. Callers hold no lock.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
	} else {
		h = NewConsoleHandler(output, level, color)
	}
	slogger = slog.New(h)
}

// Init configures the logger. Output is "stdout", "stderr", or a file path
// opened in append mode.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var (
			w       io.Writer
			c       bool
			fileOut *os.File
		)
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w, c = os.Stdout, isTerminal(os.Stdout.Fd())
		case "stderr":
			w, c = os.Stderr, isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file %q: %w", cfg.Output, err)
			}
			w, fileOut = f, f
		}

		mu.Lock()
		if closer != nil {
			_ = closer.Close()
			closer = nil
		}
		if fileOut != nil {
			closer = fileOut
		}
		output, color = w, c
		mu.Unlock()
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	reconfigure()
	return nil
}

// InitWithWriter points the logger at w. Used by tests and by commands that
// capture output.
func InitWithWriter(w io.Writer, lvl, f string, enableColor bool) {
	mu.Lock()
	output = w
	color = enableColor
	mu.Unlock()

	if lvl != "" {
		SetLevel(lvl)
	}
	if f != "" {
		SetFormat(f)
	}
	reconfigure()
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARN", "WARNING":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	}
}

// SetFormat sets the output format, "text" or "json". Unknown formats are ignored.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return
	}
	mu.Lock()
	changed := format != f
	format = f
	mu.Unlock()
	if changed {
		reconfigure()
	}
}

// Enabled reports whether records at l would be written.
func Enabled(l slog.Level) bool {
	return l >= level.Level()
}

// Logger returns the current *slog.Logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func Debug(msg string, args ...any) { log(context.Background(), slog.LevelDebug, msg, args) }
func Info(msg string, args ...any)  { log(context.Background(), slog.LevelInfo, msg, args) }
func Warn(msg string, args ...any)  { log(context.Background(), slog.LevelWarn, msg, args) }
func Error(msg string, args ...any) { log(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level, prefixing the run fields stored in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, appendContextFields(ctx, args))
}

// InfoCtx logs at info level, prefixing the run fields stored in ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, appendContextFields(ctx, args))
}

// WarnCtx logs at warn level, prefixing the run fields stored in ctx.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelWarn, msg, appendContextFields(ctx, args))
}

// ErrorCtx logs at error level, prefixing the run fields stored in ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, appendContextFields(ctx, args))
}

func log(ctx context.Context, l slog.Level, msg string, args []any) {
	if !Enabled(l) {
		return
	}
	Logger().Log(ctx, l, msg, args...)
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 8+len(args))
	if lc.TraceID != "" {
		out = append(out, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		out = append(out, KeySpanID, lc.SpanID)
	}
	if lc.RunID != "" {
		out = append(out, KeyRunID, lc.RunID)
	}
	if lc.Manipulator != "" {
		out = append(out, KeyManipulator, lc.Manipulator)
	}
	return append(out, args...)
}

// With returns a logger with pre-bound attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Duration returns the time since start in milliseconds.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
