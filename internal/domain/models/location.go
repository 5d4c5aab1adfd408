package models

import (
	"time"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
)

// LocationSample is one position report from exactly one source.
type LocationSample struct {
	Coordinate     Coordinate           `json:"location"`
	Source         types.LocationSource `json:"source"`
	Timestamp      time.Time            `json:"timestamp"`
	AccuracyMeters *float64             `json:"accuracy_meters,omitempty"`
}

// PlacementKind distinguishes placing the self marker from moving it.
type PlacementKind int

const (
	// PlacementSet places or replaces the marker (first fix, source switch, socket samples).
	PlacementSet PlacementKind = iota
	// PlacementUpdate moves an already placed marker (continuous GPS only).
	PlacementUpdate
)

func (k PlacementKind) String() string {
	if k == PlacementUpdate {
		return "update"
	}
	return "set"
}

// Placement is a canonical position decision made by the arbiter.
type Placement struct {
	Kind   PlacementKind  `json:"-"`
	Sample LocationSample `json:"sample"`
}

// PositionUpdate is the fan-out message published for other services.
type PositionUpdate struct {
	DeviceID  string               `json:"device_id"`
	SessionID string               `json:"session_id"`
	Source    types.LocationSource `json:"source"`
	Kind      string               `json:"kind"`
	Timestamp time.Time            `json:"timestamp"`
	Location  Coordinate           `json:"location"`

	AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
}
