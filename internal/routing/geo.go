package routing

import (
	"github.com/looproute/looproute/pkg/polyline"
)

// BoundingBox represents a geographic bounding box.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Bounds returns the bounding box of the route path.
func (r *Route) Bounds() (BoundingBox, bool) {
	if len(r.Path) == 0 {
		return BoundingBox{}, false
	}

	box := BoundingBox{
		MinLat: r.Path[0].Lat,
		MinLon: r.Path[0].Lon,
		MaxLat: r.Path[0].Lat,
		MaxLon: r.Path[0].Lon,
	}
	for _, c := range r.Path[1:] {
		box.MinLat = min(box.MinLat, c.Lat)
		box.MinLon = min(box.MinLon, c.Lon)
		box.MaxLat = max(box.MaxLat, c.Lat)
		box.MaxLon = max(box.MaxLon, c.Lon)
	}
	return box, true
}

// Polyline encodes the route path with precision 5.
func (r *Route) Polyline() string {
	return polyline.Encode(toPolyline(r.Path))
}

// DistanceBetween returns the great-circle distance between two coordinates in meters.
func DistanceBetween(a, b Coordinate) float64 {
	return polyline.Distance(
		polyline.Coordinate{Lat: a.Lat, Lon: a.Lon},
		polyline.Coordinate{Lat: b.Lat, Lon: b.Lon},
	)
}

func toPolyline(path []Coordinate) []polyline.Coordinate {
	coords := make([]polyline.Coordinate, len(path))
	for i, c := range path {
		coords[i] = polyline.Coordinate{Lat: c.Lat, Lon: c.Lon}
	}
	return coords
}
