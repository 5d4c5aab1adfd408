package arbiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
)

const waitFor = 2 * time.Second

type watch struct {
	ctx   context.Context
	fixes chan models.LocationSample
	errs  chan error
}

type fakeGPS struct {
	mu      sync.Mutex
	watches []*watch
}

func (g *fakeGPS) Watch(ctx context.Context) (<-chan models.LocationSample, <-chan error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := &watch{ctx: ctx, fixes: make(chan models.LocationSample, 8), errs: make(chan error, 1)}
	g.watches = append(g.watches, w)
	return w.fixes, w.errs
}

func (g *fakeGPS) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.watches)
}

func (g *fakeGPS) last() *watch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.watches[len(g.watches)-1]
}

type fakeIP struct {
	mu     sync.Mutex
	calls  int
	sample models.LocationSample
	err    error
}

func (f *fakeIP) Locate(context.Context) (models.LocationSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.sample, f.err
}

func (f *fakeIP) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type chanSink chan models.Placement

func (s chanSink) Place(_ context.Context, p models.Placement) { s <- p }

func sample(src types.LocationSource, lon, lat float64) models.LocationSample {
	return models.LocationSample{
		Coordinate: models.Coordinate{Lon: lon, Lat: lat},
		Source:     src,
		Timestamp:  time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

type harness struct {
	a    *Arbiter
	gps  *fakeGPS
	ip   *fakeIP
	sink chanSink
}

func start(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		gps:  &fakeGPS{},
		ip:   &fakeIP{sample: sample(types.SourceIP, 116.4, 39.9)},
		sink: make(chanSink, 32),
	}
	h.a = New(cfg, h.gps, h.ip, h.sink, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) waitMode(t *testing.T, want types.ArbiterMode) {
	t.Helper()
	require.Eventually(t, func() bool { return h.a.Snapshot().Mode == want }, waitFor, time.Millisecond,
		"mode stuck at %s", h.a.Snapshot().Mode)
}

func (h *harness) next(t *testing.T) models.Placement {
	t.Helper()
	select {
	case p := <-h.sink:
		return p
	case <-time.After(waitFor):
		t.Fatal("no placement emitted")
		return models.Placement{}
	}
}

func (h *harness) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case p := <-h.sink:
		t.Fatalf("unexpected placement %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGPSFirstFixIsSetThenUpdates(t *testing.T) {
	h := start(t, Config{InitialLink: types.LinkOffline, InitialPermission: true})
	h.waitMode(t, types.ModeGPSOnly)
	require.Eventually(t, func() bool { return h.gps.count() == 1 }, waitFor, time.Millisecond)

	w := h.gps.last()
	w.fixes <- sample(types.SourceGPS, 116.30, 39.90)
	w.fixes <- sample(types.SourceGPS, 116.31, 39.90)
	w.fixes <- sample(types.SourceGPS, 116.32, 39.90)

	assert.Equal(t, models.PlacementSet, h.next(t).Kind)
	assert.Equal(t, models.PlacementUpdate, h.next(t).Kind)
	last := h.next(t)
	assert.Equal(t, models.PlacementUpdate, last.Kind)
	assert.Equal(t, 116.32, last.Sample.Coordinate.Lon)
	assert.Zero(t, h.ip.Calls())
}

func TestUnlinkedToOnlineStopsGPSAndPlacesSocketSample(t *testing.T) {
	h := start(t, Config{InitialLink: types.LinkUnlinked, InitialPermission: true})
	h.waitMode(t, types.ModeGPSOnly)
	require.Eventually(t, func() bool { return h.gps.count() == 1 }, waitFor, time.Millisecond)

	w := h.gps.last()
	w.fixes <- sample(types.SourceGPS, 116.30, 39.90)
	require.Equal(t, models.PlacementSet, h.next(t).Kind)

	ctx := context.Background()
	require.NoError(t, h.a.SetLinkState(ctx, types.LinkOnline))
	h.waitMode(t, types.ModeSocketAwaitingFirstFix)

	// the watch is stopped and late fixes are discarded
	require.Eventually(t, func() bool { return w.ctx.Err() != nil }, waitFor, time.Millisecond)
	w.fixes <- sample(types.SourceGPS, 116.31, 39.90)
	h.assertQuiet(t)

	// last good position survives the switch
	snap := h.a.Snapshot()
	require.NotNil(t, snap.LastGood)
	assert.Equal(t, types.SourceGPS, snap.LastGood.Source)

	sock := sample(types.SourceSocket, 121.47, 31.23)
	require.NoError(t, h.a.PushSocketSample(ctx, sock))

	p := h.next(t)
	assert.Equal(t, models.PlacementSet, p.Kind)
	assert.Equal(t, sock, p.Sample)
	h.assertQuiet(t)
	assert.Equal(t, types.ModeSocketPrimary, h.a.Snapshot().Mode)
	assert.Equal(t, 1, h.gps.count())
}

func TestSocketPrimaryForwardsEverySample(t *testing.T) {
	h := start(t, Config{InitialLink: types.LinkOnline})
	h.waitMode(t, types.ModeSocketAwaitingFirstFix)

	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, h.a.PushSocketSample(ctx, sample(types.SourceSocket, 120+float64(i), 30)))
	}
	for i := range 3 {
		p := h.next(t)
		assert.Equal(t, models.PlacementSet, p.Kind)
		assert.Equal(t, 120+float64(i), p.Sample.Coordinate.Lon)
	}
	assert.Zero(t, h.gps.count())
}

func TestOnlineAfterSocketSeenGoesStraightToPrimary(t *testing.T) {
	h := start(t, Config{InitialLink: types.LinkOnline})
	ctx := context.Background()
	require.NoError(t, h.a.PushSocketSample(ctx, sample(types.SourceSocket, 120, 30)))
	h.next(t)

	require.NoError(t, h.a.SetLinkState(ctx, types.LinkOffline))
	h.waitMode(t, types.ModeIPFallback)
	require.NoError(t, h.a.SetLinkState(ctx, types.LinkOnline))
	h.waitMode(t, types.ModeSocketPrimary)
}

func TestSocketSampleIgnoredWhenNotOnline(t *testing.T) {
	h := start(t, Config{InitialLink: types.LinkOffline, InitialPermission: true})
	h.waitMode(t, types.ModeGPSOnly)

	require.NoError(t, h.a.PushSocketSample(context.Background(), sample(types.SourceSocket, 120, 30)))
	h.assertQuiet(t)
	assert.Equal(t, types.ModeGPSOnly, h.a.Snapshot().Mode)
}

func TestNoPermissionUsesSingleIPLookup(t *testing.T) {
	h := start(t, Config{InitialLink: types.LinkUnlinked})
	h.waitMode(t, types.ModeIPFallback)

	p := h.next(t)
	assert.Equal(t, models.PlacementSet, p.Kind)
	assert.Equal(t, types.SourceIP, p.Sample.Source)
	h.assertQuiet(t)
	assert.Equal(t, 1, h.ip.Calls())
	assert.Zero(t, h.gps.count())
}

func TestIPLookupFailureIsNotFatal(t *testing.T) {
	h := start(t, Config{})
	h.waitMode(t, types.ModeIPFallback)
	h.next(t)

	h.ip.mu.Lock()
	h.ip.err = types.ErrLookupFailed
	h.ip.mu.Unlock()

	ctx := context.Background()
	require.NoError(t, h.a.SetPermission(ctx, true))
	h.waitMode(t, types.ModeGPSOnly)
	require.NoError(t, h.a.SetPermission(ctx, false))
	h.waitMode(t, types.ModeIPFallback)

	require.Eventually(t, func() bool { return h.ip.Calls() == 2 }, waitFor, time.Millisecond)
	h.assertQuiet(t)
}

func TestGPSFailureFallsBackToIP(t *testing.T) {
	h := start(t, Config{InitialPermission: true})
	h.waitMode(t, types.ModeGPSOnly)
	require.Eventually(t, func() bool { return h.gps.count() == 1 }, waitFor, time.Millisecond)

	h.gps.last().errs <- errors.Join(types.ErrPermissionDenied, errors.New("user revoked"))
	h.waitMode(t, types.ModeIPFallback)

	p := h.next(t)
	assert.Equal(t, types.SourceIP, p.Sample.Source)
	assert.False(t, h.a.Snapshot().Permission)
	assert.Error(t, h.gps.last().ctx.Err())
}

func TestSurfaceReadyReplacesLastGood(t *testing.T) {
	h := start(t, Config{InitialLink: types.LinkOnline})
	ctx := context.Background()

	// nothing known yet
	require.NoError(t, h.a.SurfaceReady(ctx))
	h.assertQuiet(t)

	s := sample(types.SourceSocket, 121, 31)
	require.NoError(t, h.a.PushSocketSample(ctx, s))
	h.next(t)

	require.NoError(t, h.a.SurfaceReady(ctx))
	p := h.next(t)
	assert.Equal(t, models.PlacementSet, p.Kind)
	assert.Equal(t, s, p.Sample)
}

func TestSurfaceReadyMakesNextGPSFixASet(t *testing.T) {
	h := start(t, Config{InitialPermission: true})
	h.waitMode(t, types.ModeGPSOnly)
	require.Eventually(t, func() bool { return h.gps.count() == 1 }, waitFor, time.Millisecond)
	w := h.gps.last()

	w.fixes <- sample(types.SourceGPS, 1, 1)
	w.fixes <- sample(types.SourceGPS, 2, 2)
	h.next(t)
	h.next(t)

	require.NoError(t, h.a.SurfaceReady(context.Background()))
	assert.Equal(t, models.PlacementSet, h.next(t).Kind)

	w.fixes <- sample(types.SourceGPS, 3, 3)
	assert.Equal(t, models.PlacementSet, h.next(t).Kind)
	w.fixes <- sample(types.SourceGPS, 4, 4)
	assert.Equal(t, models.PlacementUpdate, h.next(t).Kind)
}

func TestPostAfterStop(t *testing.T) {
	a := New(Config{}, &fakeGPS{}, &fakeIP{}, make(chanSink, 8), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.Run(ctx), context.Canceled)

	assert.ErrorIs(t, a.SetPermission(context.Background(), true), types.ErrArbiterStopped)
}
