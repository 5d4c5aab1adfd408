package handler

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/surface"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
)

/*===================== Device ========================*/

type DeviceService interface {
	State(ctx context.Context) models.EngineState
	SetLinkState(ctx context.Context, s types.DeviceLinkState) error
	SetPermission(ctx context.Context, granted bool) error
	SetForeground(ctx context.Context, fg bool)
}

/*===================== Map ========================*/

type MapService interface {
	SetLayer(ctx context.Context, layer types.LayerType, customURL string) (bool, error)
	Center(ctx context.Context, c models.Coordinate) (bool, error)
	SendCommand(ctx context.Context, t types.MessageType, payload json.RawMessage) (bool, error)

	AppendTrackPoint(ctx context.Context, owner uuid.UUID, color string, c models.Coordinate) (models.TrackSegment, bool)
	Track(ctx context.Context, owner uuid.UUID) (models.TrackSegment, error)
	ClearTrack(ctx context.Context, owner uuid.UUID) error
	ClearTracks(ctx context.Context)

	Enclosure(ctx context.Context) models.PolygonRecord
	AddVertex(ctx context.Context, c models.Coordinate) models.PolygonRecord
	MoveVertex(ctx context.Context, i int, c models.Coordinate) (models.PolygonRecord, error)
	RemoveVertex(ctx context.Context, i int) (models.PolygonRecord, error)
	ClearEnclosure(ctx context.Context) models.PolygonRecord
}

/*===================== Surface ========================*/

// SurfaceInbound consumes frames from a rendering surface.
type SurfaceInbound = surface.Inbound

type SurfaceServer interface {
	Serve(ctx context.Context, conn *websocket.Conn, in SurfaceInbound) error
}
