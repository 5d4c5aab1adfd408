package rtk

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
)

const frameTypeLocation = "location"

type FrameKind int

const (
	FrameIgnored FrameKind = iota
	FrameLocation
)

// Frame is one decoded inbound RTK frame.
type Frame struct {
	Kind     FrameKind
	Type     string
	Location models.Coordinate
}

type rawFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type locationData struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// DecodeFrame parses an inbound frame. Frame types other than location are
// returned as FrameIgnored; they are not errors.
func DecodeFrame(data []byte) (Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", types.ErrMalformedMessage, err)
	}
	if raw.Type != frameTypeLocation {
		return Frame{Kind: FrameIgnored, Type: raw.Type}, nil
	}

	var loc locationData
	if err := json.Unmarshal(raw.Data, &loc); err != nil {
		return Frame{}, fmt.Errorf("%w: location data: %w", types.ErrMalformedMessage, err)
	}
	if loc.Lat == nil || loc.Lon == nil {
		return Frame{}, fmt.Errorf("%w: location without lat/lon", types.ErrMalformedMessage)
	}
	c := models.Coordinate{Lon: *loc.Lon, Lat: *loc.Lat}
	if math.Abs(c.Lat) > 90 || math.Abs(c.Lon) > 180 {
		return Frame{}, fmt.Errorf("%w: coordinate out of range %v", types.ErrMalformedMessage, c)
	}
	return Frame{Kind: FrameLocation, Type: raw.Type, Location: c}, nil
}

// HeartbeatFrame builds the keep-alive frame for a device.
func HeartbeatFrame(imei string) []byte {
	b, _ := json.Marshal([]struct {
		IMEI string `json:"imei"`
	}{{IMEI: imei}})
	return b
}

// NewMessageHandler turns inbound frames into socket location samples.
// Malformed frames are logged and dropped; the channel stays up.
func NewMessageHandler(clk clock.Clock, l logger.Logger, push func(ctx context.Context, s models.LocationSample)) func(context.Context, []byte) {
	return func(ctx context.Context, data []byte) {
		ctx = wrap.WithSource(ctx, types.SourceSocket.String())

		f, err := DecodeFrame(data)
		if err != nil {
			metrics.ChannelFramesTotal.WithLabelValues("in", "malformed").Inc()
			l.Warn(ctx, "dropping rtk frame", "error", err)
			return
		}
		if f.Kind != FrameLocation {
			l.Debug(ctx, "ignoring rtk frame", "type", f.Type)
			return
		}

		metrics.LocationSamplesTotal.WithLabelValues(types.SourceSocket.String()).Inc()
		push(ctx, models.LocationSample{
			Coordinate: f.Location,
			Source:     types.SourceSocket,
			Timestamp:  clk.Now(),
		})
	}
}
