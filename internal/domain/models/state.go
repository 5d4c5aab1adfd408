package models

import (
	"time"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
)

// ArbiterSnapshot is a read-only view of the location arbiter.
type ArbiterSnapshot struct {
	Mode        types.ArbiterMode     `json:"mode"`
	LinkState   types.DeviceLinkState `json:"linkState"`
	Permission  bool                  `json:"permission"`
	LastGood    *LocationSample       `json:"lastGood,omitempty"`
	SocketSeen  bool                  `json:"socketSeen"`
	Transitions int                   `json:"transitions"`
}

// ChannelStatus is a read-only view of the RTK connection channel.
type ChannelStatus struct {
	State      types.ConnectionState `json:"state"`
	Attempts   int                   `json:"attempts"`
	Foreground bool                  `json:"foreground"`
	Closed     bool                  `json:"closed"`
	Failed     bool                  `json:"failed"`
	OpenedAt   time.Time             `json:"openedAt,omitzero"`

	// FailureReason explains the last terminal failure while Failed is set.
	FailureReason string `json:"failureReason,omitempty"`
}

// EngineState is served by the host API.
type EngineState struct {
	Arbiter      ArbiterSnapshot `json:"arbiter"`
	Channel      ChannelStatus   `json:"channel"`
	Heading      *HeadingSample  `json:"heading,omitempty"`
	SurfaceReady bool            `json:"surfaceReady"`
}
