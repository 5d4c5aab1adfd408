// Package crs converts coordinates between WGS-84 and the regionally offset
// reference system used by the basemap tiles.
//
// The offset only applies inside a fixed bounding box. Outside it both
// directions are the identity.
package crs

import (
	"math"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
)

const (
	// Krasovsky 1940 ellipsoid.
	semiMajorAxis = 6378245.0
	eccentricity2 = 0.00669342162296594323

	minLon = 72.004
	maxLon = 137.8347
	minLat = 0.8293
	maxLat = 55.8271

	inverseIterations = 2
)

// OutsideRegion reports whether c lies outside the offset region.
func OutsideRegion(c models.Coordinate) bool {
	return c.Lon < minLon || c.Lon > maxLon || c.Lat < minLat || c.Lat > maxLat
}

// ToOffset converts a WGS-84 coordinate into the offset system.
func ToOffset(c models.Coordinate) models.Coordinate {
	if OutsideRegion(c) {
		return c
	}
	dLon, dLat := offset(c.Lon, c.Lat)
	return models.Coordinate{Lon: c.Lon + dLon, Lat: c.Lat + dLat}
}

// FromOffset converts an offset-system coordinate back to WGS-84.
// There is no closed form, so the forward conversion is inverted with a
// fixed-point refinement: g = g - (ToOffset(g) - c), starting at g = c.
func FromOffset(c models.Coordinate) models.Coordinate {
	if OutsideRegion(c) {
		return c
	}
	g := c
	for range inverseIterations {
		f := ToOffset(g)
		g = models.Coordinate{
			Lon: g.Lon - (f.Lon - c.Lon),
			Lat: g.Lat - (f.Lat - c.Lat),
		}
	}
	return g
}

func offset(lon, lat float64) (dLon, dLat float64) {
	x, y := lon-105.0, lat-35.0
	dLat = transformLat(x, y)
	dLon = transformLon(x, y)

	radLat := lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - eccentricity2*magic*magic
	sqrtMagic := math.Sqrt(magic)

	dLat = (dLat * 180.0) / ((semiMajorAxis * (1 - eccentricity2)) / (magic * sqrtMagic) * math.Pi)
	dLon = (dLon * 180.0) / (semiMajorAxis / sqrtMagic * math.Cos(radLat) * math.Pi)
	return dLon, dLat
}

func transformLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func transformLon(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}
