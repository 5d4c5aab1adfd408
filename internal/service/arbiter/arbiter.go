// Package arbiter selects which location source is authoritative and emits
// the single canonical position stream.
package arbiter

import (
	"context"
	"errors"
	"sync"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
)

const eventBuffer = 64

type Config struct {
	InitialLink       types.DeviceLinkState
	InitialPermission bool
}

// Arbiter is the single writer of the canonical position. All state below
// the events channel is owned by the Run goroutine.
type Arbiter struct {
	gps  GPSWatcher
	ip   IPLocator
	sink Sink
	l    logger.Logger

	events chan event
	done   chan struct{}

	mode        types.ArbiterMode
	link        types.DeviceLinkState
	permission  bool
	lastGood    *models.LocationSample
	socketSeen  bool
	transitions int

	gen       uint64 // current GPS or IP run
	gpsFirst  bool   // next GPS fix places the marker
	stopWatch context.CancelFunc

	snapMu sync.RWMutex
	snap   models.ArbiterSnapshot
}

func New(cfg Config, gps GPSWatcher, ip IPLocator, sink Sink, l logger.Logger) *Arbiter {
	if cfg.InitialLink == "" {
		cfg.InitialLink = types.LinkUnlinked
	}
	a := &Arbiter{
		gps:        gps,
		ip:         ip,
		sink:       sink,
		l:          l,
		events:     make(chan event, eventBuffer),
		done:       make(chan struct{}),
		mode:       types.ModeIdle,
		link:       cfg.InitialLink,
		permission: cfg.InitialPermission,
		stopWatch:  func() {},
	}
	a.publishSnapshot()
	return a
}

// Run evaluates the initial inputs and then consumes events until ctx is
// done. Any running GPS watch is stopped on return.
func (a *Arbiter) Run(ctx context.Context) error {
	defer close(a.done)
	defer a.stopSources()

	a.evaluate(ctx)
	a.publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.events:
			a.handle(ctx, ev)
			a.publishSnapshot()
		}
	}
}

// SetLinkState delivers a new device link status.
func (a *Arbiter) SetLinkState(ctx context.Context, s types.DeviceLinkState) error {
	return a.post(ctx, linkChanged{state: s})
}

// SetPermission delivers the current location permission.
func (a *Arbiter) SetPermission(ctx context.Context, granted bool) error {
	return a.post(ctx, permissionChanged{granted: granted})
}

// PushSocketSample delivers one sample received from the RTK socket.
func (a *Arbiter) PushSocketSample(ctx context.Context, s models.LocationSample) error {
	return a.post(ctx, socketSample{sample: s})
}

// SurfaceReady tells the arbiter that the rendering surface (re)started
// and has no marker yet.
func (a *Arbiter) SurfaceReady(ctx context.Context) error {
	return a.post(ctx, surfaceReady{})
}

// Snapshot returns the state as of the last processed event.
func (a *Arbiter) Snapshot() models.ArbiterSnapshot {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snap
}

func (a *Arbiter) post(ctx context.Context, ev event) error {
	select {
	case <-a.done:
		return types.ErrArbiterStopped
	default:
	}

	select {
	case a.events <- ev:
		return nil
	case <-a.done:
		return types.ErrArbiterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Arbiter) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case linkChanged:
		a.link = ev.state
		a.evaluate(ctx)
	case permissionChanged:
		a.permission = ev.granted
		a.evaluate(ctx)
	case socketSample:
		a.onSocketSample(ctx, ev.sample)
	case surfaceReady:
		a.onSurfaceReady(ctx)
	case gpsFix:
		a.onGPSFix(ctx, ev)
	case gpsFailed:
		a.onGPSFailed(ctx, ev)
	case ipResult:
		a.onIPResult(ctx, ev)
	default:
		a.l.Warn(ctx, "unknown arbiter event ignored")
	}
}

// evaluate applies the transition rule to the current link and permission.
func (a *Arbiter) evaluate(ctx context.Context) {
	var target types.ArbiterMode
	switch {
	case a.link == types.LinkOnline && a.socketSeen:
		target = types.ModeSocketPrimary
	case a.link == types.LinkOnline:
		target = types.ModeSocketAwaitingFirstFix
	case a.permission:
		target = types.ModeGPSOnly
	default:
		target = types.ModeIPFallback
	}

	if target == a.mode {
		return
	}
	a.transition(ctx, target)
}

func (a *Arbiter) transition(ctx context.Context, to types.ArbiterMode) {
	from := a.mode
	ctx = wrap.WithAction(ctx, types.ActionArbiterTransition)

	a.stopSources()
	a.mode = to
	a.transitions++
	metrics.ArbiterTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	a.l.Info(ctx, "location source changed", "from", from, "to", to, "link", a.link, "permission", a.permission)

	switch to {
	case types.ModeGPSOnly:
		a.startWatch(ctx)
	case types.ModeIPFallback:
		a.startLookup(ctx)
	case types.ModeSocketPrimary, types.ModeSocketAwaitingFirstFix:
		// the last good position stays on the map until a socket sample arrives
	}
}

// stopSources invalidates results of the current GPS or IP run.
func (a *Arbiter) stopSources() {
	a.stopWatch()
	a.stopWatch = func() {}
	a.gen++
}

func (a *Arbiter) startWatch(ctx context.Context) {
	gen := a.gen
	watchCtx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel
	a.gpsFirst = true

	fixes, errs := a.gps.Watch(watchCtx)
	go a.forwardGPS(watchCtx, gen, fixes, errs)
}

func (a *Arbiter) forwardGPS(ctx context.Context, gen uint64, fixes <-chan models.LocationSample, errs <-chan error) {
	for fixes != nil || errs != nil {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-fixes:
			if !ok {
				fixes = nil
				continue
			}
			if a.post(ctx, gpsFix{gen: gen, sample: s}) != nil {
				return
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			_ = a.post(ctx, gpsFailed{gen: gen, err: err})
			return
		}
	}
}

func (a *Arbiter) startLookup(ctx context.Context) {
	gen := a.gen
	go func() {
		s, err := a.ip.Locate(ctx)
		_ = a.post(ctx, ipResult{gen: gen, sample: s, err: err})
	}()
}

func (a *Arbiter) onSocketSample(ctx context.Context, s models.LocationSample) {
	ctx = wrap.WithSource(ctx, types.SourceSocket.String())
	a.socketSeen = true

	switch a.mode {
	case types.ModeSocketAwaitingFirstFix:
		a.transition(ctx, types.ModeSocketPrimary)
	case types.ModeSocketPrimary:
	default:
		a.l.Debug(ctx, "socket sample ignored, device not online", "mode", a.mode)
		return
	}
	a.place(ctx, models.PlacementSet, s)
}

func (a *Arbiter) onGPSFix(ctx context.Context, ev gpsFix) {
	if ev.gen != a.gen || a.mode != types.ModeGPSOnly {
		return
	}
	ctx = wrap.WithSource(ctx, types.SourceGPS.String())

	kind := models.PlacementUpdate
	if a.gpsFirst {
		kind = models.PlacementSet
		a.gpsFirst = false
	}
	a.place(ctx, kind, ev.sample)
}

func (a *Arbiter) onGPSFailed(ctx context.Context, ev gpsFailed) {
	if ev.gen != a.gen || a.mode != types.ModeGPSOnly {
		return
	}
	ctx = wrap.WithAction(wrap.WithSource(ctx, types.SourceGPS.String()), types.ActionGPSWatch)
	if errors.Is(ev.err, types.ErrPermissionDenied) {
		a.permission = false
	}
	a.l.Warn(ctx, "gps watch failed, falling back to ip lookup", "error", ev.err)
	a.transition(ctx, types.ModeIPFallback)
}

func (a *Arbiter) onIPResult(ctx context.Context, ev ipResult) {
	if ev.gen != a.gen || a.mode != types.ModeIPFallback {
		return
	}
	ctx = wrap.WithAction(wrap.WithSource(ctx, types.SourceIP.String()), types.ActionIPLookup)
	if ev.err != nil {
		a.l.Warn(ctx, "ip lookup failed", "error", ev.err)
		return
	}
	a.place(ctx, models.PlacementSet, ev.sample)
}

func (a *Arbiter) onSurfaceReady(ctx context.Context) {
	if a.mode == types.ModeGPSOnly {
		a.gpsFirst = true
	}
	if a.lastGood == nil {
		return
	}
	a.place(ctx, models.PlacementSet, *a.lastGood)
}

func (a *Arbiter) place(ctx context.Context, kind models.PlacementKind, s models.LocationSample) {
	a.lastGood = &s
	metrics.PlacementsTotal.WithLabelValues(s.Source.String(), kind.String()).Inc()
	a.l.Debug(wrap.WithAction(ctx, types.ActionPlacement), "canonical position",
		"kind", kind.String(), "lon", s.Coordinate.Lon, "lat", s.Coordinate.Lat)
	a.sink.Place(ctx, models.Placement{Kind: kind, Sample: s})
}

func (a *Arbiter) publishSnapshot() {
	snap := models.ArbiterSnapshot{
		Mode:        a.mode,
		LinkState:   a.link,
		Permission:  a.permission,
		SocketSeen:  a.socketSeen,
		Transitions: a.transitions,
	}
	if a.lastGood != nil {
		s := *a.lastGood
		snap.LastGood = &s
	}

	a.snapMu.Lock()
	a.snap = snap
	a.snapMu.Unlock()
}
