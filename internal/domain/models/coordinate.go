package models

// Coordinate is a lon/lat pair in decimal degrees. The reference system is
// implied by where the value travels: WGS-84 inside the engine, the offset
// system on the rendering-surface side.
type Coordinate struct {
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
}
