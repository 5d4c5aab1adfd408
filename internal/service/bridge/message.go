package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/crs"
)

// envelope is the wire form of every protocol message.
type envelope struct {
	Type    types.MessageType `json:"type"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

/*===================== Outbound ========================*/

// Outbound is the closed set of messages sent to the rendering surface.
type Outbound interface {
	Type() types.MessageType
	// payload returns the JSON payload; convert is applied to every
	// coordinate the engine produced.
	payload(convert func(models.Coordinate) models.Coordinate) any
}

type locationPayload struct {
	Location models.Coordinate `json:"location"`
}

// SetIconLocation places or replaces the self marker.
type SetIconLocation struct{ Location models.Coordinate }

// UpdateIconLocation moves an existing self marker.
type UpdateIconLocation struct{ Location models.Coordinate }

// SetLocation centres the map without touching the marker.
type SetLocation struct{ Location models.Coordinate }

type UpdateMarkerRotation struct{ Rotation float64 }

type SwitchLayer struct {
	LayerType types.LayerType
	CustomURL string
}

// TrackPolyline redraws one operator's trajectory.
type TrackPolyline struct{ Segment models.TrackSegment }

// ClearTrack removes one operator's trajectory, or every trajectory when
// OwnerID is the zero UUID.
type ClearTrack struct{ OwnerID uuid.UUID }

// EnclosureLand redraws the enclosure being surveyed with its derived values.
type EnclosureLand struct{ Record models.PolygonRecord }

// ConnectionFailed tells the user the RTK link gave up reconnecting.
type ConnectionFailed struct{ Reason string }

// Passthrough is a drawing command relayed for a collaborator. Its payload
// is forwarded untouched; build it with NewPassthrough.
type Passthrough struct {
	typ  types.MessageType
	data json.RawMessage
}

func NewPassthrough(t types.MessageType, payload json.RawMessage) (Passthrough, error) {
	if !types.IsDrawingCommand(t) {
		return Passthrough{}, fmt.Errorf("%q: %w", t, types.ErrUnknownCommand)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return Passthrough{}, fmt.Errorf("%q payload: %w", t, types.ErrMalformedMessage)
	}
	return Passthrough{typ: t, data: payload}, nil
}

func (SetIconLocation) Type() types.MessageType      { return types.MsgSetIconLocation }
func (UpdateIconLocation) Type() types.MessageType   { return types.MsgUpdateIconLocation }
func (SetLocation) Type() types.MessageType          { return types.MsgSetLocation }
func (UpdateMarkerRotation) Type() types.MessageType { return types.MsgUpdateMarkerRotation }
func (SwitchLayer) Type() types.MessageType          { return types.MsgSwitchLayer }
func (TrackPolyline) Type() types.MessageType        { return types.MsgDrawTrackPolyline }
func (ClearTrack) Type() types.MessageType           { return types.MsgClearTrackPolyline }
func (EnclosureLand) Type() types.MessageType        { return types.MsgDrawEnclosureLand }
func (ConnectionFailed) Type() types.MessageType     { return types.MsgConnectionFailed }
func (p Passthrough) Type() types.MessageType        { return p.typ }

func (m SetIconLocation) payload(convert func(models.Coordinate) models.Coordinate) any {
	return locationPayload{Location: convert(m.Location)}
}

func (m UpdateIconLocation) payload(convert func(models.Coordinate) models.Coordinate) any {
	return locationPayload{Location: convert(m.Location)}
}

func (m SetLocation) payload(convert func(models.Coordinate) models.Coordinate) any {
	return locationPayload{Location: convert(m.Location)}
}

func (m UpdateMarkerRotation) payload(func(models.Coordinate) models.Coordinate) any {
	return struct {
		Rotation float64 `json:"rotation"`
	}{m.Rotation}
}

func (m SwitchLayer) payload(func(models.Coordinate) models.Coordinate) any {
	return struct {
		LayerType types.LayerType `json:"layerType"`
		CustomURL string          `json:"customUrl,omitempty"`
	}{m.LayerType, m.CustomURL}
}

func (m TrackPolyline) payload(convert func(models.Coordinate) models.Coordinate) any {
	seg := m.Segment
	seg.Points = convertAll(seg.Points, convert)
	return seg
}

func (m ConnectionFailed) payload(func(models.Coordinate) models.Coordinate) any {
	return struct {
		Reason string `json:"reason"`
	}{m.Reason}
}

func (m ClearTrack) payload(func(models.Coordinate) models.Coordinate) any {
	if m.OwnerID == uuid.Nil {
		return nil
	}
	return struct {
		OwnerID uuid.UUID `json:"ownerId"`
	}{m.OwnerID}
}

func (m EnclosureLand) payload(convert func(models.Coordinate) models.Coordinate) any {
	rec := m.Record
	rec.Ring = convertAll(rec.Ring, convert)
	return rec
}

func convertAll(in []models.Coordinate, convert func(models.Coordinate) models.Coordinate) []models.Coordinate {
	out := make([]models.Coordinate, len(in))
	for i, c := range in {
		out[i] = convert(c)
	}
	return out
}

func (p Passthrough) payload(func(models.Coordinate) models.Coordinate) any {
	if len(p.data) == 0 {
		return nil
	}
	return p.data
}

// Encode serialises an outbound message. With offset set, engine
// coordinates are converted to the basemap's offset system first.
func Encode(m Outbound, offset bool) ([]byte, error) {
	convert := func(c models.Coordinate) models.Coordinate { return c }
	if offset {
		convert = crs.ToOffset
	}

	env := envelope{Type: m.Type()}
	if p := m.payload(convert); p != nil {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Type(), err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

/*===================== Inbound ========================*/

// Inbound is the closed set of messages received from the rendering surface.
type Inbound interface {
	inbound()
}

type Ready struct{}

type SurfaceError struct {
	Message string
}

type NavigationComplete struct {
	Payload json.RawMessage
}

type ConsoleLog struct {
	Level   string
	Message string
}

// Unknown is any type outside the inbound vocabulary. It is ignored.
type Unknown struct {
	Type types.MessageType
}

func (Ready) inbound()              {}
func (SurfaceError) inbound()       {}
func (NavigationComplete) inbound() {}
func (ConsoleLog) inbound()         {}
func (Unknown) inbound()            {}

type textPayload struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// inboundFrame also carries the flat {"type","message","level"} shape some
// surfaces send instead of a payload object.
type inboundFrame struct {
	envelope
	textPayload
}

// DecodeInbound parses one inbound frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var env inboundFrame
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", types.ErrMalformedMessage)
	}

	switch env.Type {
	case types.MsgWebviewReady:
		return Ready{}, nil
	case types.MsgWebviewError:
		p, err := env.text()
		if err != nil {
			return nil, err
		}
		return SurfaceError{Message: p.Message}, nil
	case types.MsgWebviewNavigationPolylineComplete:
		return NavigationComplete{Payload: env.Payload}, nil
	case types.MsgWebviewConsoleLog:
		p, err := env.text()
		if err != nil {
			return nil, err
		}
		return ConsoleLog{Level: p.Level, Message: p.Message}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

// text prefers the payload and falls back to the top-level fields.
func (f inboundFrame) text() (textPayload, error) {
	if len(f.Payload) == 0 || string(f.Payload) == "null" {
		return f.textPayload, nil
	}
	return decodeText(f.Payload)
}

// decodeText accepts either an object with message/level or a bare string.
func decodeText(raw json.RawMessage) (textPayload, error) {
	var p textPayload
	if len(raw) == 0 {
		return p, nil
	}
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &p.Message); err != nil {
			return p, fmt.Errorf("%w: %w", types.ErrMalformedMessage, err)
		}
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %w", types.ErrMalformedMessage, err)
	}
	return p, nil
}
