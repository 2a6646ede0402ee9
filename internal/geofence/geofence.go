package geofence

import (
	"math"

	"oversight/internal/domain"
)

const (
	earthRadiusMeters = 6371e3
	// DefaultBufferMeters is added to the reported GPS accuracy.
	DefaultBufferMeters = 100.0
)

// Strategy selects the acceptance rule used by a Guard.
type Strategy string

const (
	// Proximity accepts a position close to any vertex or to the vertex centroid.
	Proximity Strategy = "proximity"
	// Containment accepts a position strictly inside the polygon.
	Containment Strategy = "containment"
)

func (s Strategy) Valid() bool { return s == Proximity || s == Containment }

// Guard decides whether a reported position counts as being at an object.
type Guard struct {
	BufferMeters float64
	Strategy     Strategy
}

// NewGuard returns the proximity guard with the default buffer.
func NewGuard() Guard {
	return Guard{BufferMeters: DefaultBufferMeters, Strategy: Proximity}
}

// Check evaluates pos against polygon with the configured strategy.
func (g Guard) Check(pos Position, polygon []domain.Point) bool {
	if g.Strategy == Containment {
		return Contains(domain.Point{Lat: pos.Lat, Lng: pos.Lng}, polygon)
	}
	return withinBuffer(pos.Lat, pos.Lng, pos.Accuracy, g.BufferMeters, polygon)
}

// Verify is the authoritative proximity rule: the smallest great-circle
// distance from the user to any vertex or to the centroid must not exceed
// accuracy plus the 100 m buffer.
func Verify(userLat, userLng, accuracyMeters float64, polygon []domain.Point) bool {
	return withinBuffer(userLat, userLng, accuracyMeters, DefaultBufferMeters, polygon)
}

func withinBuffer(lat, lng, accuracy, buffer float64, polygon []domain.Point) bool {
	min, ok := MinDistance(domain.Point{Lat: lat, Lng: lng}, polygon)
	if !ok {
		return false
	}
	return min <= accuracy+buffer
}

// MinDistance returns the smallest distance in meters from p to any vertex of
// polygon or to its centroid. ok is false for an empty polygon.
func MinDistance(p domain.Point, polygon []domain.Point) (float64, bool) {
	if len(polygon) == 0 {
		return 0, false
	}
	min := Distance(p, Center(polygon))
	for _, v := range polygon {
		if d := Distance(p, v); d < min {
			min = d
		}
	}
	return min, true
}

// Center is the arithmetic mean of the vertices.
func Center(polygon []domain.Point) domain.Point {
	if len(polygon) == 0 {
		return domain.Point{}
	}
	var c domain.Point
	for _, v := range polygon {
		c.Lat += v.Lat
		c.Lng += v.Lng
	}
	n := float64(len(polygon))
	return domain.Point{Lat: c.Lat / n, Lng: c.Lng / n}
}

// Distance is the haversine great-circle distance in meters.
func Distance(a, b domain.Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Contains reports whether p lies inside polygon using ray casting. The
// polygon is implicitly closed; fewer than three vertices never contain a point.
func Contains(p domain.Point, polygon []domain.Point) bool {
	if len(polygon) < 3 {
		return false
	}
	inside := false
	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		vi, vj := polygon[i], polygon[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lng < (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lng {
			inside = !inside
		}
	}
	return inside
}
