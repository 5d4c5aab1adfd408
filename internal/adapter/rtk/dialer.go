// Package rtk connects to the remote RTK positioning service over WebSocket
// and decodes its frames.
package rtk

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/channel"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
)

type Config struct {
	BaseURL          string
	Token            string
	IMEI             string
	HandshakeTimeout time.Duration
}

// Dialer opens RTK sockets. It satisfies channel.Dialer.
type Dialer struct {
	cfg   Config
	ws    *websocket.Dialer
	clock clock.Clock
}

func NewDialer(cfg Config, clk clock.Clock) *Dialer {
	ws := *websocket.DefaultDialer
	if cfg.HandshakeTimeout > 0 {
		ws.HandshakeTimeout = cfg.HandshakeTimeout
	}
	return &Dialer{cfg: cfg, ws: &ws, clock: clk}
}

// URL returns the socket address with the session token and device id.
func (d *Dialer) URL() (string, error) {
	u, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse rtk url: %w", err)
	}
	q := u.Query()
	q.Set("token", d.cfg.Token)
	q.Set("imei", d.cfg.IMEI)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Dialer) Dial(ctx context.Context) (channel.Socket, error) {
	const op = "rtk.Dialer.Dial"
	ctx = wrap.WithAction(ctx, types.ActionRTKDial)

	if err := CheckToken(d.cfg.Token, d.clock.Now()); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	addr, err := d.URL()
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	conn, resp, err := d.ws.DialContext(ctx, addr, nil)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		if resp != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: handshake status %d: %w", op, resp.StatusCode, err))
		}
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return conn, nil
}

// CheckToken rejects a session token whose exp claim lies in the past.
// The signature is not verified here; the RTK service does that. Tokens
// that are not JWTs are passed through untouched.
func CheckToken(token string, now time.Time) error {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("expired at %s: %w", claims.ExpiresAt.Time.Format(time.RFC3339), types.ErrSessionExpired)
	}
	return nil
}
