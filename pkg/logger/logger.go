// Package logger builds the process-wide *slog.Logger and provides attribute
// helpers for the fields that appear across the scheduler, jobs and stores.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options configure the root logger.
type Options struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string

	// Format is json or text. Default: text.
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	// Service and Version are attached to every record when set.
	Service string
	Version string
}

// ParseLevel parses a level name into a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing in the requested format.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: ParseLevel(opts.Level) == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	l := slog.New(handler)
	if opts.Service != "" {
		l = l.With(slog.String("service", opts.Service))
	}
	if opts.Version != "" {
		l = l.With(slog.String("version", opts.Version))
	}
	return l
}

// Discard returns a logger that drops every record. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

type ctxKey struct{}

// WithContext returns a context carrying l.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Domain-specific attributes.

func EnrollmentID(id string) slog.Attr  { return slog.String("enrollment_id", id) }
func Kind(kind string) slog.Attr        { return slog.String("kind", kind) }
func Program(id string) slog.Attr       { return slog.String("program", id) }
func Recipient(addr string) slog.Attr   { return slog.String("recipient", addr) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Job(name string) slog.Attr         { return slog.String("job", name) }
func Attempt(n int) slog.Attr           { return slog.Int("attempt", n) }
func Latency(d time.Duration) slog.Attr { return slog.String("latency", d.String()) }

// Err returns an error attribute; nil renders as an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
