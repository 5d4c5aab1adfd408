// Package geometry holds the geodesic helpers used for enclosures and
// operator tracks: ring area, edge lengths and incremental trajectories.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/project"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
)

// SquareMetersPerMu is the size of one local area unit (mu).
const SquareMetersPerMu = 10000.0 / 15.0

// Area returns the area of the ring in mu, rounded to 2 decimals.
// The ring is closed implicitly.
func Area(ring []models.Coordinate) float64 {
	return round2(AreaSquareMeters(ring) / SquareMetersPerMu)
}

// AreaSquareMeters returns the unrounded geodesic area of the ring.
func AreaSquareMeters(ring []models.Coordinate) float64 {
	r := toRing(ring)
	if len(r) < 3 {
		return 0
	}
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return geo.Area(r)
}

// EdgeLengths returns the haversine length in metres of every edge of the
// ring, including the closing edge back to the first vertex.
func EdgeLengths(ring []models.Coordinate) []float64 {
	r := toRing(ring)
	if len(r) > 1 && r[0] == r[len(r)-1] {
		r = r[:len(r)-1]
	}
	if len(r) < 2 {
		return []float64{}
	}

	lengths := make([]float64, 0, len(r))
	for i := range r {
		next := r[(i+1)%len(r)]
		lengths = append(lengths, round2(geo.DistanceHaversine(r[i], next)))
	}
	// two vertices form a single segment, not a ring
	if len(r) == 2 {
		return lengths[:1]
	}
	return lengths
}

// Perimeter is the sum of the rounded edge lengths.
func Perimeter(ring []models.Coordinate) float64 {
	var sum float64
	for _, l := range EdgeLengths(ring) {
		sum += l
	}
	return round2(sum)
}

// AppendIfMoved appends p unless it equals the last stored point once both
// are projected to Web Mercator. It reports whether p was appended.
func AppendIfMoved(points []models.Coordinate, p models.Coordinate) ([]models.Coordinate, bool) {
	if len(points) > 0 && samePosition(points[len(points)-1], p) {
		return points, false
	}
	return append(points, p), true
}

func samePosition(a, b models.Coordinate) bool {
	return project.WGS84.ToMercator(toPoint(a)) == project.WGS84.ToMercator(toPoint(b))
}

func toPoint(c models.Coordinate) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

func fromPoint(p orb.Point) models.Coordinate {
	return models.Coordinate{Lon: p.Lon(), Lat: p.Lat()}
}

func toRing(cs []models.Coordinate) orb.Ring {
	r := make(orb.Ring, 0, len(cs)+1)
	for _, c := range cs {
		r = append(r, toPoint(c))
	}
	return r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
