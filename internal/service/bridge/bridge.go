// Package bridge keeps the rendering surface in sync with the engine. It
// serialises outbound commands, delivers them in order once the surface is
// ready and dispatches inbound surface events.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
)

const DefaultQueueSize = 256

// Surface delivers one encoded frame to the rendering surface.
type Surface interface {
	Post(data []byte) error
}

type Config struct {
	QueueSize     int
	OffsetEnabled bool
	Layer         types.LayerType
	CustomURL     string
}

// Callbacks are invoked for inbound events. Nil callbacks are skipped.
type Callbacks struct {
	OnReady              func(ctx context.Context)
	OnError              func(ctx context.Context, message string)
	OnNavigationComplete func(ctx context.Context, payload json.RawMessage)
	OnConsoleLog         func(ctx context.Context, level, message string)
}

type frame struct {
	typ  types.MessageType
	data []byte
	gen  uint64
}

type Bridge struct {
	cfg     Config
	surface Surface
	cb      Callbacks
	l       logger.Logger

	queue chan frame

	mu       sync.RWMutex
	ready    bool
	readyGen uint64 // bumped whenever readiness is gained or lost
	layer    SwitchLayer
}

func New(cfg Config, surface Surface, cb Callbacks, l logger.Logger) *Bridge {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Layer == "" {
		cfg.Layer = types.LayerVector
	}
	return &Bridge{
		cfg:     cfg,
		surface: surface,
		cb:      cb,
		l:       l,
		queue:   make(chan frame, cfg.QueueSize),
		layer:   SwitchLayer{LayerType: cfg.Layer, CustomURL: cfg.CustomURL},
	}
}

// SetCallbacks replaces the inbound callbacks. It must be called before Run.
func (b *Bridge) SetCallbacks(cb Callbacks) {
	b.cb = cb
}

// Run drains the outbound queue until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, types.ActionSurfaceOutbound)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-b.queue:
			b.deliver(ctx, f)
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, f frame) {
	b.mu.RLock()
	current := b.ready && f.gen == b.readyGen
	b.mu.RUnlock()

	if !current {
		metrics.RecordBridgeMessage("out", f.typ.String(), "stale")
		return
	}
	if err := b.surface.Post(f.data); err != nil {
		metrics.RecordBridgeMessage("out", f.typ.String(), "error")
		b.l.Warn(ctx, "failed to post frame to rendering surface", "type", f.typ, "error", err)
		return
	}
	metrics.RecordBridgeMessage("out", f.typ.String(), "delivered")
}

// Send queues m for delivery. Before the surface is ready the message is
// dropped and ErrSurfaceNotReady returned; callers may ignore it.
func (b *Bridge) Send(ctx context.Context, m Outbound) error {
	b.mu.RLock()
	ready, gen := b.ready, b.readyGen
	b.mu.RUnlock()

	if !ready {
		metrics.RecordBridgeMessage("out", m.Type().String(), "not_ready")
		return types.ErrSurfaceNotReady
	}

	data, err := Encode(m, b.cfg.OffsetEnabled)
	if err != nil {
		metrics.RecordBridgeMessage("out", m.Type().String(), "error")
		return wrap.Error(ctx, err)
	}

	select {
	case b.queue <- frame{typ: m.Type(), data: data, gen: gen}:
		return nil
	default:
		metrics.RecordBridgeMessage("out", m.Type().String(), "queue_full")
		return wrap.Error(ctx, types.ErrSurfaceQueueFull)
	}
}

// Ready reports whether the surface has announced itself.
func (b *Bridge) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// Disconnected drops readiness; frames still queued are discarded.
func (b *Bridge) Disconnected(ctx context.Context) {
	b.mu.Lock()
	was := b.ready
	b.ready = false
	b.readyGen++
	b.mu.Unlock()

	if was {
		b.l.Info(wrap.WithAction(ctx, types.ActionSurfaceReady), "rendering surface disconnected")
	}
}

/*===================== Engine outputs ========================*/

// Place implements arbiter.Sink.
func (b *Bridge) Place(ctx context.Context, p models.Placement) {
	var m Outbound = SetIconLocation{Location: p.Sample.Coordinate}
	if p.Kind == models.PlacementUpdate {
		m = UpdateIconLocation{Location: p.Sample.Coordinate}
	}
	b.sendQuiet(ctx, m)
}

// EmitHeading forwards a throttled heading as the marker rotation.
func (b *Bridge) EmitHeading(ctx context.Context, h models.HeadingSample) {
	b.sendQuiet(ctx, UpdateMarkerRotation{Rotation: h.Degrees})
}

// Center moves the map view without touching the marker.
func (b *Bridge) Center(ctx context.Context, c models.Coordinate) error {
	return b.Send(ctx, SetLocation{Location: c})
}

// SetLayer stores the basemap preference and sends it. The preference is
// re-sent every time the surface becomes ready.
func (b *Bridge) SetLayer(ctx context.Context, layer types.LayerType, customURL string) error {
	m := SwitchLayer{LayerType: layer, CustomURL: customURL}

	b.mu.Lock()
	b.layer = m
	b.mu.Unlock()

	return b.Send(ctx, m)
}

func (b *Bridge) sendQuiet(ctx context.Context, m Outbound) {
	err := b.Send(ctx, m)
	if err != nil && !errors.Is(err, types.ErrSurfaceNotReady) {
		b.l.Warn(wrap.WithAction(ctx, types.ActionSurfaceOutbound), "outbound message dropped", "type", m.Type(), "error", err)
	}
}

/*===================== Inbound ========================*/

// HandleInbound decodes one frame from the surface and dispatches it.
// Malformed frames are logged and dropped.
func (b *Bridge) HandleInbound(ctx context.Context, data []byte) {
	ctx = wrap.WithAction(ctx, types.ActionSurfaceInbound)

	msg, err := DecodeInbound(data)
	if err != nil {
		metrics.RecordBridgeMessage("in", "", "malformed")
		b.l.Warn(ctx, "dropping malformed surface message", "error", err)
		return
	}

	switch m := msg.(type) {
	case Ready:
		metrics.RecordBridgeMessage("in", types.MsgWebviewReady.String(), "handled")
		b.onReady(ctx)
	case SurfaceError:
		metrics.RecordBridgeMessage("in", types.MsgWebviewError.String(), "handled")
		b.l.Warn(ctx, "rendering surface reported an error", "surface_message", m.Message)
		if b.cb.OnError != nil {
			b.cb.OnError(ctx, m.Message)
		}
	case NavigationComplete:
		metrics.RecordBridgeMessage("in", types.MsgWebviewNavigationPolylineComplete.String(), "handled")
		if b.cb.OnNavigationComplete != nil {
			b.cb.OnNavigationComplete(ctx, m.Payload)
		}
	case ConsoleLog:
		metrics.RecordBridgeMessage("in", types.MsgWebviewConsoleLog.String(), "handled")
		b.l.Debug(ctx, "surface console", "level", m.Level, "surface_message", m.Message)
		if b.cb.OnConsoleLog != nil {
			b.cb.OnConsoleLog(ctx, m.Level, m.Message)
		}
	case Unknown:
		metrics.RecordBridgeMessage("in", "unknown", "ignored")
		b.l.Debug(ctx, "ignoring unknown surface message", "type", m.Type)
	}
}

func (b *Bridge) onReady(ctx context.Context) {
	b.mu.Lock()
	b.ready = true
	b.readyGen++
	layer := b.layer
	b.mu.Unlock()

	ctx = wrap.WithAction(ctx, types.ActionSurfaceReady)
	b.l.Info(ctx, "rendering surface ready")

	b.sendQuiet(ctx, layer)
	if b.cb.OnReady != nil {
		b.cb.OnReady(ctx)
	}
}
