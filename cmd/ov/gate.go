package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"oversight/internal/domain"
	"oversight/internal/engine"
	"oversight/internal/geofence"
)

// positionFlags is the device position passed on the command line.
type positionFlags struct {
	lat, lng, accuracy float64
	set                bool
}

func (p *positionFlags) register(cmd *cobra.Command, who string) {
	cmd.Flags().Float64Var(&p.lat, "lat", 0, who+" latitude")
	cmd.Flags().Float64Var(&p.lng, "lng", 0, who+" longitude")
	cmd.Flags().Float64Var(&p.accuracy, "accuracy", 0, "position accuracy in meters")
}

func (p *positionFlags) load(cmd *cobra.Command) {
	p.set = cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng")
}

// source is nil without a position, so the gate reports it unavailable.
func (p positionFlags) source() geofence.PositionSource {
	if !p.set {
		return nil
	}
	return geofence.Fixed(positionOf(p.lat, p.lng, p.accuracy, time.Now()))
}

// requireOnSite fails unless the position is within the object's boundary.
func requireOnSite(ctx context.Context, e engine.Engine, objectID string, p positionFlags) (geofence.Position, error) {
	o, err := e.GetObject(ctx, objectID)
	if err != nil {
		return geofence.Position{}, err
	}
	return e.Guard().Gate(ctx, p.source(), geofence.DefaultTimeout, o.Polygon)
}

func raiseViolation(ctx context.Context, e engine.Engine, actor domain.Actor, objectID string, in engine.ViolationInput, p positionFlags) (domain.Violation, error) {
	pos, err := requireOnSite(ctx, e, objectID, p)
	if err != nil {
		return domain.Violation{}, err
	}
	loc := pos.Location()
	in.Location = &loc
	in.InspectorLocationVerified = true
	return e.RaiseViolation(ctx, actor, objectID, in)
}

// setWorkStatus gates contractors on their position; supervision works remotely.
func setWorkStatus(ctx context.Context, e engine.Engine, actor domain.Actor, objectID, workItemID string, status domain.WorkStatus, p positionFlags) (domain.ConstructionObject, error) {
	if actor.Role == domain.RoleContractor {
		if _, err := requireOnSite(ctx, e, objectID, p); err != nil {
			return domain.ConstructionObject{}, err
		}
	}
	return e.UpdateWorkItemStatus(ctx, actor, objectID, workItemID, status)
}

func createDeliveryNote(ctx context.Context, e engine.Engine, actor domain.Actor, objectID, workItemID, description string, p positionFlags) (domain.DeliveryNote, error) {
	if _, err := requireOnSite(ctx, e, objectID, p); err != nil {
		return domain.DeliveryNote{}, err
	}
	return e.CreateDeliveryNote(ctx, actor, objectID, workItemID, description)
}
