package dto

import (
	"encoding/json"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
)

// CoordinateReq is a WGS-84 position. Pointers tell a missing value from 0.
type CoordinateReq struct {
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
}

func (r CoordinateReq) ToModel() models.Coordinate {
	return models.Coordinate{Lon: *r.Lon, Lat: *r.Lat}
}

type LayerReq struct {
	LayerType string `json:"layerType" validate:"required,oneof=vector satellite custom"`
	CustomURL string `json:"customUrl" validate:"required_if=LayerType custom,omitempty,url"`
}

func (r LayerReq) Layer() types.LayerType {
	return types.LayerType(r.LayerType)
}

// CommandReq is a drawing command relayed to the rendering surface as is.
type CommandReq struct {
	Type    string          `json:"type" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

type TrackPointReq struct {
	CoordinateReq
	Color string `json:"color" validate:"omitempty,max=32"`
}
