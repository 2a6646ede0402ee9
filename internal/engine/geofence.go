package engine

import (
	"context"

	"oversight/internal/domain"
	"oversight/internal/geofence"
)

// GeofenceResult is the outcome of checking a position against an object.
type GeofenceResult struct {
	Inside         bool              `json:"inside"`
	Strategy       geofence.Strategy `json:"strategy"`
	BufferMeters   float64           `json:"buffer_meters"`
	DistanceMeters float64           `json:"distance_meters"`
}

// Guard returns the geofence guard described by the config.
func (e Engine) Guard() geofence.Guard {
	g := geofence.NewGuard()
	if e.Config == nil {
		return g
	}
	if s := geofence.Strategy(e.Config.Geofence.Strategy); s.Valid() {
		g.Strategy = s
	}
	if e.Config.Geofence.BufferMeters > 0 {
		g.BufferMeters = e.Config.Geofence.BufferMeters
	}
	return g
}

// CheckPosition evaluates a client-reported position against the object's polygon.
func (e Engine) CheckPosition(ctx context.Context, objectID string, pos geofence.Position) (GeofenceResult, error) {
	if pos.Accuracy < 0 {
		return GeofenceResult{}, invalidInput("accuracy must not be negative")
	}
	o, err := e.GetObject(ctx, objectID)
	if err != nil {
		return GeofenceResult{}, err
	}
	g := e.Guard()
	dist, _ := geofence.MinDistance(domain.Point{Lat: pos.Lat, Lng: pos.Lng}, o.Polygon)
	return GeofenceResult{
		Inside:         g.Check(pos, o.Polygon),
		Strategy:       g.Strategy,
		BufferMeters:   g.BufferMeters,
		DistanceMeters: dist,
	}, nil
}
