package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the surface is served from a local webview origin
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Surface struct {
	server  SurfaceServer
	inbound SurfaceInbound
	l       logger.Logger
}

func NewSurface(server SurfaceServer, inbound SurfaceInbound, l logger.Logger) *Surface {
	return &Surface{
		server:  server,
		inbound: inbound,
		l:       l,
	}
}

// HandleWS godoc
// @Summary      Rendering surface socket
// @Description  Upgrades to a WebSocket. Outbound frames carry {type, payload} drawing commands; the surface answers with WEBVIEW_* events.
// @Tags         Surface
// @Success      101
// @Router       /ws/surface [get]
func (h *Surface) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionSurfaceInbound)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.l.Warn(ctx, "failed to upgrade surface connection", "error", err.Error())
		return
	}

	h.l.Info(ctx, "surface connected", "remote_addr", r.RemoteAddr)
	if err := h.server.Serve(ctx, conn, h.inbound); err != nil {
		h.l.Error(ctx, "surface connection ended with error", err)
		return
	}
	h.l.Info(ctx, "surface disconnected", "remote_addr", r.RemoteAddr)
}
