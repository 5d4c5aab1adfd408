package models

import "github.com/google/uuid"

// TrackSegment is the append-only trajectory of one operator.
type TrackSegment struct {
	OwnerID uuid.UUID    `json:"ownerId"`
	Color   string       `json:"color"`
	Points  []Coordinate `json:"points"`
}

// PolygonRecord is a closed ring plus the values derived from it.
// Values are built together and never patched in place.
type PolygonRecord struct {
	Ring        []Coordinate `json:"ring"`
	AreaUnits   float64      `json:"areaUnits"`
	EdgeLengths []float64    `json:"edgeLengths"`
	Perimeter   float64      `json:"perimeter"`
}
