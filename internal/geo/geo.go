// Package geo provides the small amount of geometry needed to cut a search
// area into query tiles: box and centroid conversion, containment, the search
// radius that covers a box, and square tessellation.
package geo

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// earthRadiusMeters is the mean Earth radius used for great-circle distances.
const earthRadiusMeters = 6371008.8

// Point is a WGS 84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox is an axis-aligned box in degrees.
type BoundingBox struct {
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
}

// Validate reports whether the box has positive extent on both axes.
func (b BoundingBox) Validate() error {
	if !(b.MaxLat > b.MinLat) {
		return eris.Errorf("geo: max_lat %v must be greater than min_lat %v", b.MaxLat, b.MinLat)
	}
	if !(b.MaxLng > b.MinLng) {
		return eris.Errorf("geo: max_lng %v must be greater than min_lng %v", b.MaxLng, b.MinLng)
	}
	return nil
}

// Centroid returns the arithmetic midpoint of the box edges.
func (b BoundingBox) Centroid() Point {
	return Point{
		Lat: (b.MaxLat + b.MinLat) / 2,
		Lng: (b.MaxLng + b.MinLng) / 2,
	}
}

// Corners returns the south-west, south-east, north-east and north-west corners.
func (b BoundingBox) Corners() [4]Point {
	return [4]Point{
		{Lat: b.MinLat, Lng: b.MinLng},
		{Lat: b.MinLat, Lng: b.MaxLng},
		{Lat: b.MaxLat, Lng: b.MaxLng},
		{Lat: b.MaxLat, Lng: b.MinLng},
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%.6f,%.6f → %.6f,%.6f]", b.MinLat, b.MinLng, b.MaxLat, b.MaxLng)
}

// Contains reports whether (lat, lng) lies inside b. Both bounds are inclusive.
func Contains(b BoundingBox, lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// MetersPerDegree returns the length in meters of one degree of latitude and
// one degree of longitude at the given latitude.
func MetersPerDegree(lat float64) (latMeters, lngMeters float64) {
	phi := lat * math.Pi / 180
	latMeters = 111132.92 - 559.82*math.Cos(2*phi) + 1.175*math.Cos(4*phi) - 0.0023*math.Cos(6*phi)
	lngMeters = 111412.84*math.Cos(phi) - 93.5*math.Cos(3*phi) + 0.118*math.Cos(5*phi)
	return latMeters, lngMeters
}

// TranslateToBox converts a center point and a metric extent into a box using
// the local meters-per-degree at lat.
func TranslateToBox(lat, lng, widthMeters, heightMeters float64) BoundingBox {
	latM, lngM := MetersPerDegree(lat)
	dLat := heightMeters / 2 / latM
	dLng := widthMeters / 2 / lngM
	return BoundingBox{
		MaxLat: lat + dLat,
		MaxLng: lng + dLng,
		MinLat: lat - dLat,
		MinLng: lng - dLng,
	}
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// EnclosingRadius is the distance from center to the (MaxLat, MaxLng) corner,
// so a circular search around center covers the whole box.
func EnclosingRadius(b BoundingBox, center Point) float64 {
	return Distance(center, Point{Lat: b.MaxLat, Lng: b.MaxLng})
}
