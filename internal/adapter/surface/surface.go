// Package surface carries protocol frames between the engine and rendering
// surfaces attached over WebSocket.
package surface

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
	ws "github.com/BlowhardChen/diyue-geoengine/pkg/wsHub"
)

const pingInterval = 30 * time.Second

// Inbound consumes frames sent by a surface.
type Inbound interface {
	HandleInbound(ctx context.Context, data []byte)
	Disconnected(ctx context.Context)
}

// Surface implements bridge.Surface on top of a connection hub. Every
// outbound frame goes to all attached surfaces.
type Surface struct {
	hub       *ws.ConnectionHub
	pingEvery time.Duration
	l         logger.Logger
}

func New(hub *ws.ConnectionHub, l logger.Logger) *Surface {
	return &Surface{hub: hub, pingEvery: pingInterval, l: l}
}

func (s *Surface) Post(data []byte) error {
	const op = "surface.Surface.Post"
	if err := s.hub.Broadcast(data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Attached returns the number of connected surfaces.
func (s *Surface) Attached() int {
	return s.hub.Len()
}

// Serve registers conn and pumps its frames into in until the peer leaves or
// ctx is done. When the last surface leaves, in.Disconnected is called.
func (s *Surface) Serve(ctx context.Context, conn *websocket.Conn, in Inbound) error {
	const op = "surface.Surface.Serve"

	c := ws.NewConn(ctx, conn)
	ctx = wrap.WithSessionID(wrap.WithAction(ctx, types.ActionSurfaceInbound), c.ID().String())

	n, err := s.hub.Add(c)
	if err != nil {
		_ = conn.Close()
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	metrics.SurfaceConnectionsGauge.Set(float64(n))
	s.l.Info(ctx, "rendering surface attached", "surfaces", n)

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	go s.keepalive(ctx, c)

	err = c.Listen(func(data []byte) error {
		in.HandleInbound(ctx, data)
		return nil
	})

	left, _ := s.hub.Delete(c.ID())
	metrics.SurfaceConnectionsGauge.Set(float64(left))
	s.l.Info(ctx, "rendering surface detached", "surfaces", left)
	if left == 0 {
		in.Disconnected(ctx)
	}

	if err == nil || errors.Is(err, ws.ErrConnClosed) || isNormalClose(err) {
		return nil
	}
	return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
}

// keepalive pings the peer and drops it once a ping fails.
func (s *Surface) keepalive(ctx context.Context, c *ws.Conn) {
	t := time.NewTicker(s.pingEvery)
	defer t.Stop()

	for {
		select {
		case <-c.Done():
			return
		case <-t.C:
			if err := c.Health(); err != nil {
				s.l.Warn(ctx, "rendering surface stopped answering pings", "error", err)
				_ = c.Close()
				return
			}
		}
	}
}

func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}
