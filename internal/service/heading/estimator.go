// Package heading derives a compass heading from the latest accelerometer
// and magnetometer readings.
package heading

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
)

const (
	DefaultThrottle     = 100 * time.Millisecond
	DefaultMinCrossNorm = 1e-3
)

type Config struct {
	Throttle          time.Duration
	MinCrossNorm      float64
	CalibrationOffset float64 // degrees, added before wrapping to [0,360)
}

// Emitter receives every heading that passes the throttle.
type Emitter func(ctx context.Context, h models.HeadingSample)

// Estimator fuses the two sensor streams. All state is owned by the Run
// goroutine; Latest may be called from anywhere.
type Estimator struct {
	cfg   Config
	clock clock.Clock
	emit  Emitter
	l     logger.Logger

	accel, mag       r3.Vec
	hasAccel, hasMag bool
	lastEmit         time.Time

	mu     sync.RWMutex
	latest *models.HeadingSample
}

func New(cfg Config, clk clock.Clock, emit Emitter, l logger.Logger) *Estimator {
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.MinCrossNorm <= 0 {
		cfg.MinCrossNorm = DefaultMinCrossNorm
	}
	return &Estimator{
		cfg:   cfg,
		clock: clk,
		emit:  emit,
		l:     l,
	}
}

// Run consumes both streams until ctx is done or both channels are closed.
func (e *Estimator) Run(ctx context.Context, accel, mag <-chan models.Vector3) error {
	ctx = wrap.WithAction(ctx, types.ActionHeadingEmit)
	for accel != nil || mag != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-accel:
			if !ok {
				accel = nil
				continue
			}
			e.observeAccel(ctx, v)
		case v, ok := <-mag:
			if !ok {
				mag = nil
				continue
			}
			e.observeMag(ctx, v)
		}
	}
	return nil
}

// Latest returns the last emitted heading.
func (e *Estimator) Latest() (models.HeadingSample, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return models.HeadingSample{}, false
	}
	return *e.latest, true
}

func (e *Estimator) observeAccel(ctx context.Context, v models.Vector3) {
	e.accel, e.hasAccel = toVec(v), true
	e.update(ctx)
}

func (e *Estimator) observeMag(ctx context.Context, v models.Vector3) {
	e.mag, e.hasMag = toVec(v), true
	e.update(ctx)
}

func (e *Estimator) update(ctx context.Context) {
	if !e.hasAccel || !e.hasMag {
		return
	}

	deg, ok := Compute(e.accel, e.mag, e.cfg.MinCrossNorm)
	if !ok {
		metrics.HeadingDiscardedTotal.WithLabelValues("degenerate").Inc()
		e.l.Debug(ctx, "sensor vectors nearly aligned, update discarded")
		return
	}

	now := e.clock.Now()
	if !e.lastEmit.IsZero() && now.Sub(e.lastEmit) < e.cfg.Throttle {
		metrics.HeadingDiscardedTotal.WithLabelValues("throttled").Inc()
		return
	}
	e.lastEmit = now

	h := models.HeadingSample{
		Degrees:   normalize(deg + e.cfg.CalibrationOffset),
		Timestamp: now,
	}

	e.mu.Lock()
	e.latest = &h
	e.mu.Unlock()

	metrics.HeadingEmittedTotal.Inc()
	if e.emit != nil {
		e.emit(ctx, h)
	}
}

// Compute returns the heading in [0,360) of the unit vector mag x accel.
// It reports false when the cross product is shorter than minNorm.
func Compute(accel, mag r3.Vec, minNorm float64) (float64, bool) {
	cross := r3.Cross(mag, accel)
	n := r3.Norm(cross)
	if n < minNorm || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	u := r3.Unit(cross)
	return normalize(math.Atan2(u.Y, u.X) * 180 / math.Pi), true
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func toVec(v models.Vector3) r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}
