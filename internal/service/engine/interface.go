package engine

import (
	"context"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/bridge"
)

/*===================== Position ========================*/

type Arbiter interface {
	SetLinkState(ctx context.Context, s types.DeviceLinkState) error
	SetPermission(ctx context.Context, granted bool) error
	Snapshot() models.ArbiterSnapshot
}

// Channel is the RTK connection. It is optional.
type Channel interface {
	SetForeground(fg bool)
	State() models.ChannelStatus
}

// HeadingSource is optional.
type HeadingSource interface {
	Latest() (models.HeadingSample, bool)
}

/*===================== Rendering ========================*/

type Bridge interface {
	Send(ctx context.Context, m bridge.Outbound) error
	SetLayer(ctx context.Context, layer types.LayerType, customURL string) error
	Center(ctx context.Context, c models.Coordinate) error
	Ready() bool
}
