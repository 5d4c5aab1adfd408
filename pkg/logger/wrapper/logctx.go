package wrap

import (
	"context"
	"log/slog"
)

// LogCtx holds the fields every log record inherits from its context.
type LogCtx struct {
	Action    string
	DeviceID  string // IMEI of the paired receiver
	SessionID string
	Source    string // location source: SOCKET, GPS or IP
	RequestID string
}

type logCtxKey struct{}

// Attrs returns the non-empty fields as log attributes.
func (lc LogCtx) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 5)
	for _, f := range []struct{ key, val string }{
		{"action", lc.Action},
		{"device_id", lc.DeviceID},
		{"session_id", lc.SessionID},
		{"source", lc.Source},
		{"request_id", lc.RequestID},
	} {
		if f.val != "" {
			attrs = append(attrs, slog.String(f.key, f.val))
		}
	}
	return attrs
}

// over fills the empty fields of lc from base.
func (lc LogCtx) over(base LogCtx) LogCtx {
	pick := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}
	return LogCtx{
		Action:    pick(lc.Action, base.Action),
		DeviceID:  pick(lc.DeviceID, base.DeviceID),
		SessionID: pick(lc.SessionID, base.SessionID),
		Source:    pick(lc.Source, base.Source),
		RequestID: pick(lc.RequestID, base.RequestID),
	}
}

// WithLogCtx merges lc over the LogCtx already stored in ctx.
func WithLogCtx(ctx context.Context, lc LogCtx) context.Context {
	base, _ := FromContext(ctx)
	return context.WithValue(ctx, logCtxKey{}, lc.over(base))
}

// FromContext returns the LogCtx stored in ctx, if any.
func FromContext(ctx context.Context) (LogCtx, bool) {
	lc, ok := ctx.Value(logCtxKey{}).(LogCtx)
	return lc, ok
}

func update(ctx context.Context, set func(*LogCtx)) context.Context {
	lc, _ := FromContext(ctx)
	set(&lc)
	return context.WithValue(ctx, logCtxKey{}, lc)
}

func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.DeviceID = deviceID })
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.SessionID = sessionID })
}

func WithSource(ctx context.Context, source string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.Source = source })
}

// WithAction names the operation being logged. It replaces any previous action.
func WithAction(ctx context.Context, action string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.Action = action })
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.RequestID = requestID })
}
