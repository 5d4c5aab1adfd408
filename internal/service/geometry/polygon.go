package geometry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
)

// NewPolygonRecord derives area and edge lengths from ring. The ring is
// copied so later changes by the caller do not leak into the record.
func NewPolygonRecord(ring []models.Coordinate) models.PolygonRecord {
	r := slices.Clone(ring)
	if r == nil {
		r = []models.Coordinate{}
	}
	return models.PolygonRecord{
		Ring:        r,
		AreaUnits:   Area(r),
		EdgeLengths: EdgeLengths(r),
		Perimeter:   Perimeter(r),
	}
}

// Enclosure is the polygon an operator is currently drawing.
// Every change builds a fresh record and swaps it in under the lock, so
// readers only ever see a ring together with its own derived values.
type Enclosure struct {
	mu     sync.RWMutex
	record models.PolygonRecord
}

func NewEnclosure() *Enclosure {
	return &Enclosure{record: NewPolygonRecord(nil)}
}

// Record returns the current polygon. The returned value must not be modified.
func (e *Enclosure) Record() models.PolygonRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.record
}

func (e *Enclosure) AddVertex(c models.Coordinate) models.PolygonRecord {
	return e.update(func(ring []models.Coordinate) ([]models.Coordinate, error) {
		return append(ring, c), nil
	})
}

func (e *Enclosure) MoveVertex(i int, c models.Coordinate) (models.PolygonRecord, error) {
	return e.tryUpdate(func(ring []models.Coordinate) ([]models.Coordinate, error) {
		if i < 0 || i >= len(ring) {
			return nil, fmt.Errorf("vertex %d: %w", i, types.ErrNotFound)
		}
		ring[i] = c
		return ring, nil
	})
}

func (e *Enclosure) RemoveVertex(i int) (models.PolygonRecord, error) {
	return e.tryUpdate(func(ring []models.Coordinate) ([]models.Coordinate, error) {
		if i < 0 || i >= len(ring) {
			return nil, fmt.Errorf("vertex %d: %w", i, types.ErrNotFound)
		}
		return slices.Delete(ring, i, i+1), nil
	})
}

func (e *Enclosure) Clear() models.PolygonRecord {
	return e.update(func([]models.Coordinate) ([]models.Coordinate, error) {
		return nil, nil
	})
}

func (e *Enclosure) update(fn func([]models.Coordinate) ([]models.Coordinate, error)) models.PolygonRecord {
	rec, _ := e.tryUpdate(fn)
	return rec
}

func (e *Enclosure) tryUpdate(fn func([]models.Coordinate) ([]models.Coordinate, error)) (models.PolygonRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ring, err := fn(slices.Clone(e.record.Ring))
	if err != nil {
		return e.record, err
	}
	e.record = NewPolygonRecord(ring)
	return e.record, nil
}
