package wrap

import (
	"context"
	"errors"
)

// loggedError carries the LogCtx that was current where the error happened.
type loggedError struct {
	err error
	lc  LogCtx
}

func (e *loggedError) Error() string { return e.err.Error() }
func (e *loggedError) Unwrap() error { return e.err }

// Error attaches the LogCtx of ctx to err. Wrapping an already wrapped error
// keeps the innermost context, which is the closest to the failure.
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var inner *loggedError
	if errors.As(err, &inner) {
		return err
	}

	lc, _ := FromContext(ctx)
	return &loggedError{err: err, lc: lc}
}

// ErrorCtx returns ctx enriched with the LogCtx carried by err. Fields set
// where the error happened win over those of ctx.
func ErrorCtx(ctx context.Context, err error) context.Context {
	var e *loggedError
	if !errors.As(err, &e) {
		return ctx
	}
	return WithLogCtx(ctx, e.lc)
}
