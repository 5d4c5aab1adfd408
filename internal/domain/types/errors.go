package types

import "errors"

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrLookupFailed     = errors.New("ip location lookup failed")
	ErrArbiterStopped   = errors.New("location arbiter stopped")

	ErrSessionExpired     = errors.New("session token expired")
	ErrNotConnected       = errors.New("connection channel not open")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	ErrMalformedMessage = errors.New("malformed protocol message")
	ErrSurfaceNotReady  = errors.New("rendering surface not ready")
	ErrSurfaceQueueFull = errors.New("rendering surface queue full")
	ErrUnknownCommand   = errors.New("unknown drawing command")

	ErrNotFound         = errors.New("requested item not found")
	ErrPublishQueueFull = errors.New("position publish queue full")
)
