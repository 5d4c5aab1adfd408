package models

import "time"

// HeadingSample is a compass heading in degrees, [0,360).
type HeadingSample struct {
	Degrees   float64   `json:"degrees"`
	Timestamp time.Time `json:"timestamp"`
}

// Vector3 is one raw 3-axis sensor reading.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
