// Package engine is the host-facing facade over the positioning core. It
// routes collaborator inputs to the owning component and turns track and
// enclosure edits into drawing commands.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/bridge"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/geometry"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
)

type Engine struct {
	arbiter   Arbiter
	channel   Channel
	heading   HeadingSource
	bridge    Bridge
	tracks    *geometry.TrackBook
	enclosure *geometry.Enclosure
	l         logger.Logger
}

// New builds the facade. channel and heading may be nil when the RTK link or
// the motion sensors are not configured.
func New(arb Arbiter, ch Channel, hd HeadingSource, br Bridge, tracks *geometry.TrackBook, enclosure *geometry.Enclosure, l logger.Logger) *Engine {
	return &Engine{
		arbiter:   arb,
		channel:   ch,
		heading:   hd,
		bridge:    br,
		tracks:    tracks,
		enclosure: enclosure,
		l:         l,
	}
}

/*===================== State ========================*/

func (e *Engine) State(context.Context) models.EngineState {
	st := models.EngineState{
		Arbiter:      e.arbiter.Snapshot(),
		SurfaceReady: e.bridge.Ready(),
		Channel:      models.ChannelStatus{State: types.ConnClosed, Closed: true},
	}
	if e.channel != nil {
		st.Channel = e.channel.State()
	}
	if e.heading != nil {
		if h, ok := e.heading.Latest(); ok {
			st.Heading = &h
		}
	}
	return st
}

/*===================== Device ========================*/

func (e *Engine) SetLinkState(ctx context.Context, s types.DeviceLinkState) error {
	const op = "Engine.SetLinkState"
	if err := e.arbiter.SetLinkState(ctx, s); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (e *Engine) SetPermission(ctx context.Context, granted bool) error {
	const op = "Engine.SetPermission"
	if err := e.arbiter.SetPermission(ctx, granted); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// SetForeground forwards the host lifecycle to the RTK channel.
func (e *Engine) SetForeground(ctx context.Context, fg bool) {
	ctx = wrap.WithAction(ctx, types.ActionLifecycleChanged)
	if e.channel == nil {
		e.l.Debug(ctx, "lifecycle change ignored, rtk channel disabled", "foreground", fg)
		return
	}
	e.channel.SetForeground(fg)
	e.l.Info(ctx, "host lifecycle changed", "foreground", fg)
}

/*===================== Map ========================*/

// SetLayer stores the basemap preference. It reports whether the surface got
// the change now; otherwise it is applied when the surface becomes ready.
func (e *Engine) SetLayer(ctx context.Context, layer types.LayerType, customURL string) (bool, error) {
	return delivered(e.bridge.SetLayer(ctx, layer, customURL))
}

func (e *Engine) Center(ctx context.Context, c models.Coordinate) (bool, error) {
	return delivered(e.bridge.Center(ctx, c))
}

// SendCommand relays a collaborator's drawing command.
func (e *Engine) SendCommand(ctx context.Context, t types.MessageType, payload json.RawMessage) (bool, error) {
	const op = "Engine.SendCommand"

	m, err := bridge.NewPassthrough(t, payload)
	if err != nil {
		return false, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return delivered(e.bridge.Send(ctx, m))
}

/*===================== Tracks ========================*/

// AppendTrackPoint extends an operator's trajectory and redraws it.
func (e *Engine) AppendTrackPoint(ctx context.Context, owner uuid.UUID, color string, c models.Coordinate) (models.TrackSegment, bool) {
	seg, appended := e.tracks.Append(owner, color, c)
	if appended {
		e.draw(ctx, bridge.TrackPolyline{Segment: seg})
	}
	return seg, appended
}

func (e *Engine) Track(_ context.Context, owner uuid.UUID) (models.TrackSegment, error) {
	seg, ok := e.tracks.Snapshot(owner)
	if !ok {
		return models.TrackSegment{}, fmt.Errorf("track %s: %w", owner, types.ErrNotFound)
	}
	return seg, nil
}

func (e *Engine) ClearTrack(ctx context.Context, owner uuid.UUID) error {
	if !e.tracks.Clear(owner) {
		return fmt.Errorf("track %s: %w", owner, types.ErrNotFound)
	}
	e.draw(ctx, bridge.ClearTrack{OwnerID: owner})
	return nil
}

func (e *Engine) ClearTracks(ctx context.Context) {
	e.tracks.ClearAll()
	e.draw(ctx, bridge.ClearTrack{})
}

/*===================== Enclosure ========================*/

func (e *Engine) Enclosure(context.Context) models.PolygonRecord {
	return e.enclosure.Record()
}

func (e *Engine) AddVertex(ctx context.Context, c models.Coordinate) models.PolygonRecord {
	rec := e.enclosure.AddVertex(c)
	e.draw(ctx, bridge.EnclosureLand{Record: rec})
	return rec
}

func (e *Engine) MoveVertex(ctx context.Context, i int, c models.Coordinate) (models.PolygonRecord, error) {
	rec, err := e.enclosure.MoveVertex(i, c)
	if err != nil {
		return rec, err
	}
	e.draw(ctx, bridge.EnclosureLand{Record: rec})
	return rec, nil
}

func (e *Engine) RemoveVertex(ctx context.Context, i int) (models.PolygonRecord, error) {
	rec, err := e.enclosure.RemoveVertex(i)
	if err != nil {
		return rec, err
	}
	e.draw(ctx, bridge.EnclosureLand{Record: rec})
	return rec, nil
}

func (e *Engine) ClearEnclosure(ctx context.Context) models.PolygonRecord {
	rec := e.enclosure.Clear()
	e.draw(ctx, bridge.EnclosureLand{Record: rec})
	return rec
}

/*===================== Surface events ========================*/

// Redraw repaints every track, the enclosure and a standing RTK failure
// notice. It runs whenever the surface (re)announces itself, since a
// reloaded surface starts blank.
func (e *Engine) Redraw(ctx context.Context) {
	if e.channel != nil {
		if st := e.channel.State(); st.Failed {
			e.draw(ctx, bridge.ConnectionFailed{Reason: st.FailureReason})
		}
	}
	for _, owner := range e.tracks.Owners() {
		if seg, ok := e.tracks.Snapshot(owner); ok && len(seg.Points) > 0 {
			e.draw(ctx, bridge.TrackPolyline{Segment: seg})
		}
	}
	if rec := e.enclosure.Record(); len(rec.Ring) > 0 {
		e.draw(ctx, bridge.EnclosureLand{Record: rec})
	}
}

// NotifyConnectionFailed shows the terminal RTK failure on the surface. A
// surface that attaches later gets it from Redraw.
func (e *Engine) NotifyConnectionFailed(ctx context.Context, reason string) {
	e.draw(ctx, bridge.ConnectionFailed{Reason: reason})
}

func (e *Engine) draw(ctx context.Context, m bridge.Outbound) {
	if _, err := delivered(e.bridge.Send(ctx, m)); err != nil {
		e.l.Warn(wrap.WithAction(ctx, types.ActionSurfaceOutbound), "drawing command dropped", "type", m.Type(), "error", err)
	}
}

// delivered treats a surface that is not ready yet as a normal outcome.
func delivered(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, types.ErrSurfaceNotReady):
		return false, nil
	default:
		return false, err
	}
}
