package geometry

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
)

const (
	DefaultMaxPoints         = 5000
	DefaultSimplifyTolerance = 1e-6
)

// TrackConfig bounds the size of every track segment.
type TrackConfig struct {
	MaxPoints         int
	SimplifyTolerance float64 // degrees
}

// TrackBook keeps one append-only segment per operator so that concurrent
// trajectories are never interleaved.
//
// A segment that reaches MaxPoints is first compacted with Douglas-Peucker.
// If that is not enough the oldest points are dropped until the segment is
// back at three quarters of the cap. Point order is always preserved.
type TrackBook struct {
	cfg TrackConfig

	mu       sync.RWMutex
	segments map[uuid.UUID]*models.TrackSegment

	onCompact func(owner uuid.UUID, before, after int)
}

func NewTrackBook(cfg TrackConfig) *TrackBook {
	if cfg.MaxPoints < 4 {
		cfg.MaxPoints = DefaultMaxPoints
	}
	if cfg.SimplifyTolerance <= 0 {
		cfg.SimplifyTolerance = DefaultSimplifyTolerance
	}
	return &TrackBook{
		cfg:      cfg,
		segments: make(map[uuid.UUID]*models.TrackSegment),
	}
}

// OnCompact registers a hook called after a segment was shrunk.
func (b *TrackBook) OnCompact(fn func(owner uuid.UUID, before, after int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onCompact = fn
}

// Append adds p to the owner's segment unless the operator has not moved.
// A non-empty color replaces the segment's color tag.
func (b *TrackBook) Append(owner uuid.UUID, color string, p models.Coordinate) (models.TrackSegment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seg, ok := b.segments[owner]
	if !ok {
		seg = &models.TrackSegment{OwnerID: owner, Color: color}
		b.segments[owner] = seg
	}
	if color != "" {
		seg.Color = color
	}

	if n := len(seg.Points); n > 0 && samePosition(seg.Points[n-1], p) {
		return copySegment(seg), false
	}
	if len(seg.Points) >= b.cfg.MaxPoints {
		before := len(seg.Points)
		seg.Points = b.compact(seg.Points)
		if b.onCompact != nil {
			b.onCompact(owner, before, len(seg.Points))
		}
	}

	seg.Points, _ = AppendIfMoved(seg.Points, p)
	return copySegment(seg), true
}

func (b *TrackBook) compact(points []models.Coordinate) []models.Coordinate {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, toPoint(p))
	}
	ls = simplify.DouglasPeucker(b.cfg.SimplifyTolerance).LineString(ls)

	keep := b.cfg.MaxPoints * 3 / 4
	if len(ls) > keep {
		ls = ls[len(ls)-keep:]
	}

	out := make([]models.Coordinate, 0, b.cfg.MaxPoints)
	for _, p := range ls {
		out = append(out, fromPoint(p))
	}
	return out
}

// Snapshot returns a copy of the owner's segment.
func (b *TrackBook) Snapshot(owner uuid.UUID) (models.TrackSegment, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seg, ok := b.segments[owner]
	if !ok {
		return models.TrackSegment{}, false
	}
	return copySegment(seg), true
}

func (b *TrackBook) Owners() []uuid.UUID {
	b.mu.RLock()
	defer b.mu.RUnlock()

	owners := make([]uuid.UUID, 0, len(b.segments))
	for id := range b.segments {
		owners = append(owners, id)
	}
	slices.SortFunc(owners, func(x, y uuid.UUID) int {
		return slices.Compare(x[:], y[:])
	})
	return owners
}

// Clear drops the owner's segment. It reports whether one existed.
func (b *TrackBook) Clear(owner uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.segments[owner]
	delete(b.segments, owner)
	return ok
}

func (b *TrackBook) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.segments)
}

func copySegment(seg *models.TrackSegment) models.TrackSegment {
	return models.TrackSegment{
		OwnerID: seg.OwnerID,
		Color:   seg.Color,
		Points:  slices.Clone(seg.Points),
	}
}
