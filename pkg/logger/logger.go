// Package logger is the structured JSON logger used across the engine. Every
// record picks up the fields stored in its context by package wrap.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
)

const (
	LevelDebug string = "DEBUG"
	LevelInfo  string = "INFO"
	LevelWarn  string = "WARN"
	LevelError string = "ERROR"
)

var levels = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, err error, args ...any)
}

type logger struct {
	slog *slog.Logger
}

// InitLogger writes JSON records to stdout.
func InitLogger(serviceName, logLevel string) Logger {
	return New(os.Stdout, serviceName, logLevel)
}

// New builds the logger on w. An unknown level falls back to DEBUG.
func New(w io.Writer, serviceName, logLevel string) Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	level, ok := levels[logLevel]
	if !ok {
		level = slog.LevelDebug
	}

	h := contextHandler{
		next: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: renameAttr,
		}),
	}

	return &logger{
		slog: slog.New(h).With(
			slog.String("service", serviceName),
			slog.String("hostname", hostname),
		),
	}
}

// Nop discards everything.
func Nop() Logger {
	return New(io.Discard, "", LevelError)
}

// renameAttr emits "message" and an RFC3339 "timestamp".
func renameAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.MessageKey:
		a.Key = "message"
	case slog.TimeKey:
		if t, ok := a.Value.Any().(time.Time); ok {
			return slog.String("timestamp", t.Format(time.RFC3339))
		}
	}
	return a
}

// contextHandler adds the wrap.LogCtx fields of the record's context.
type contextHandler struct {
	next slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if lc, ok := wrap.FromContext(ctx); ok {
		r.AddAttrs(lc.Attrs()...)
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

func (l *logger) Debug(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, msg, args...)
}

func (l *logger) Info(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

func (l *logger) Warn(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}

// Error logs err under the "error" group. The log context carried by err
// is merged into ctx.
func (l *logger) Error(ctx context.Context, msg string, err error, args ...any) {
	errMsg := "<nil>"
	if err != nil {
		errMsg = err.Error()
		ctx = wrap.ErrorCtx(ctx, err)
	}
	args = append([]any{slog.Group("error", slog.String("msg", errMsg))}, args...)
	l.slog.ErrorContext(ctx, msg, args...)
}

// ValidateLogLevel reports whether lvl is one of DEBUG, INFO, WARN, ERROR.
func ValidateLogLevel(lvl string) bool {
	_, ok := levels[lvl]
	return ok
}
