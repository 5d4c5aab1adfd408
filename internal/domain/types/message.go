package types

// MessageType is the `type` tag of a rendering-surface protocol message.
type MessageType string

func (t MessageType) String() string {
	return string(t)
}

// Outbound: engine -> rendering surface.
const (
	MsgSetIconLocation      MessageType = "SET_ICON_LOCATION"
	MsgUpdateIconLocation   MessageType = "UPDATE_ICON_LOCATION"
	MsgUpdateMarkerRotation MessageType = "UPDATE_MARKER_ROTATION"
	MsgSwitchLayer          MessageType = "SWITCH_LAYER"
	MsgSetLocation          MessageType = "SET_LOCATION"
	MsgConnectionFailed     MessageType = "CONNECTION_FAILED"

	// drawing commands relayed for collaborators
	MsgDotMarker                  MessageType = "DOT_MARKER"
	MsgDrawEnclosureLand          MessageType = "DRAW_ENCLOSURE_LAND"
	MsgDrawFindNavigationPolyline MessageType = "DRAW_FIND_NAVIGATION_POLYLINE"
	MsgDrawTrackPolyline          MessageType = "DRAW_TRACK_POLYLINE"
	MsgClearTrackPolyline         MessageType = "CLEAR_TRACK_POLYLINE"
	MsgDrawPolygon                MessageType = "DRAW_POLYGON"
	MsgClearMap                   MessageType = "CLEAR_MAP"
)

// Inbound: rendering surface -> engine.
const (
	MsgWebviewReady                      MessageType = "WEBVIEW_READY"
	MsgWebviewError                      MessageType = "WEBVIEW_ERROR"
	MsgWebviewNavigationPolylineComplete MessageType = "WEBVIEW_NAVIGATION_POLYLINE_COMPLETE"
	MsgWebviewConsoleLog                 MessageType = "WEBVIEW_CONSOLE_LOG"
)

// DrawingCommands is the closed set of pass-through drawing commands.
var DrawingCommands = map[MessageType]struct{}{
	MsgDotMarker:                  {},
	MsgDrawEnclosureLand:          {},
	MsgDrawFindNavigationPolyline: {},
	MsgDrawTrackPolyline:          {},
	MsgClearTrackPolyline:         {},
	MsgDrawPolygon:                {},
	MsgClearMap:                   {},
}

// IsDrawingCommand reports whether t may be relayed as a pass-through command.
func IsDrawingCommand(t MessageType) bool {
	_, ok := DrawingCommands[t]
	return ok
}

// LayerType of the basemap.
type LayerType string

const (
	LayerVector    LayerType = "vector"
	LayerSatellite LayerType = "satellite"
	LayerCustom    LayerType = "custom"
)
