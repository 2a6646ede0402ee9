package engine

import (
	"context"
	"database/sql"

	"oversight/internal/domain"
	"oversight/internal/engine/auth"
	"oversight/internal/events"
)

// DateChange carries requested dates. An empty field means "keep the current date".
type DateChange struct {
	StartDate string
	EndDate   string
}

// propose applies a date change to a plan. Control commits immediately;
// any other proposer stages the change and parks the plan in
// pending_reschedule_approve, remembering the status to restore.
func propose(p *domain.Plan, change DateChange, isControl bool) {
	eff := fill(*p, change)
	start, end := eff.StartDate, eff.EndDate
	if isControl {
		p.StartDate, p.EndDate = start, end
		// A control change supersedes a pending proposal; the saved status
		// returns so status and staging never disagree.
		if p.Pending != nil {
			p.SetStatus(priorStatus(p))
		}
		return
	}
	last := p.Status
	if p.Pending != nil {
		last = p.Pending.LastStatus
	}
	p.Pending = &domain.Proposal{StartDate: start, EndDate: end, LastStatus: last}
	p.Status = domain.WorkPendingRescheduleApprove
}

// resolve settles a pending proposal. Approval commits the staged dates;
// either way the prior status returns and the staging is cleared.
func resolve(p *domain.Plan, approved bool) error {
	if p.Pending == nil || p.Status != domain.WorkPendingRescheduleApprove {
		return invalidState("schedule is not pending approval")
	}
	if approved {
		p.StartDate, p.EndDate = p.Pending.StartDate, p.Pending.EndDate
	}
	p.SetStatus(priorStatus(p))
	return nil
}

// fill replaces empty fields of change with the plan's committed dates.
func fill(p domain.Plan, change DateChange) DateChange {
	if change.StartDate == "" {
		change.StartDate = p.StartDate
	}
	if change.EndDate == "" {
		change.EndDate = p.EndDate
	}
	return change
}

func priorStatus(p *domain.Plan) domain.WorkStatus {
	if p.Pending != nil && p.Pending.LastStatus != "" && p.Pending.LastStatus != domain.WorkPendingRescheduleApprove {
		return p.Pending.LastStatus
	}
	return domain.WorkNotStarted
}

func requireProposer(actor domain.Actor) error {
	return auth.Require(actor.Role, "change schedules", domain.RoleControl, domain.RoleContractor)
}

// UpdateSchedule proposes new dates for the object-level schedule.
func (e Engine) UpdateSchedule(ctx context.Context, actor domain.Actor, objectID string, change DateChange) (domain.ConstructionObject, error) {
	if err := requireProposer(actor); err != nil {
		return domain.ConstructionObject{}, err
	}
	return e.mutateObject(ctx, actor, objectID, func(tx *sql.Tx, o *domain.ConstructionObject) error {
		if o.Schedule == nil {
			return invalidState("object %s has no work schedule", o.ID)
		}
		eff := fill(o.Schedule.Plan, change)
		if err := validateRange(eff.StartDate, eff.EndDate); err != nil {
			return err
		}
		isControl := actor.Role == domain.RoleControl
		propose(&o.Schedule.Plan, change, isControl)
		return e.Events.Append(ctx, tx, events.ScheduleProposed, o.ID, "schedule", o.ID, actor.ID, proposalPayload(o.Schedule.Plan, isControl))
	})
}

// ResolveSchedule approves or rejects a pending object-level proposal.
func (e Engine) ResolveSchedule(ctx context.Context, actor domain.Actor, objectID string, approved bool) (domain.ConstructionObject, error) {
	if err := auth.RequireControl(actor.Role, "approve schedule changes"); err != nil {
		return domain.ConstructionObject{}, err
	}
	return e.mutateObject(ctx, actor, objectID, func(tx *sql.Tx, o *domain.ConstructionObject) error {
		if o.Schedule == nil {
			return invalidState("object %s has no work schedule", o.ID)
		}
		if err := resolve(&o.Schedule.Plan, approved); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ScheduleResolved, o.ID, "schedule", o.ID, actor.ID, events.EventPayload{
			"approved": approved, "start_date": o.Schedule.StartDate, "end_date": o.Schedule.EndDate, "status": o.Schedule.Status,
		})
	})
}

// UpdateWorkItemSchedule proposes new dates for one work item.
func (e Engine) UpdateWorkItemSchedule(ctx context.Context, actor domain.Actor, objectID, workItemID string, change DateChange) (domain.ConstructionObject, error) {
	if err := requireProposer(actor); err != nil {
		return domain.ConstructionObject{}, err
	}
	return e.mutateObject(ctx, actor, objectID, func(tx *sql.Tx, o *domain.ConstructionObject) error {
		item, err := workItemOf(o, workItemID)
		if err != nil {
			return err
		}
		eff := fill(item.Plan, change)
		if err := validateRange(eff.StartDate, eff.EndDate); err != nil {
			return err
		}
		isControl := actor.Role == domain.RoleControl
		propose(&item.Plan, change, isControl)
		return e.Events.Append(ctx, tx, events.ScheduleProposed, o.ID, "work_item", item.ID, actor.ID, proposalPayload(item.Plan, isControl))
	})
}

// ResolveWorkItemSchedule approves or rejects a pending work-item proposal.
func (e Engine) ResolveWorkItemSchedule(ctx context.Context, actor domain.Actor, objectID, workItemID string, approved bool) (domain.ConstructionObject, error) {
	if err := auth.RequireControl(actor.Role, "approve schedule changes"); err != nil {
		return domain.ConstructionObject{}, err
	}
	return e.mutateObject(ctx, actor, objectID, func(tx *sql.Tx, o *domain.ConstructionObject) error {
		item, err := workItemOf(o, workItemID)
		if err != nil {
			return err
		}
		if err := resolve(&item.Plan, approved); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ScheduleResolved, o.ID, "work_item", item.ID, actor.ID, events.EventPayload{
			"approved": approved, "start_date": item.StartDate, "end_date": item.EndDate, "status": item.Status,
		})
	})
}

func workItemOf(o *domain.ConstructionObject, id string) (*domain.WorkItem, error) {
	if o.Schedule == nil || len(o.Schedule.WorkItems) == 0 {
		return nil, invalidState("object %s has no work items", o.ID)
	}
	item, ok := o.Schedule.WorkItem(id)
	if !ok {
		return nil, notFound("work item", id)
	}
	return item, nil
}

func proposalPayload(p domain.Plan, isControl bool) events.EventPayload {
	payload := events.EventPayload{"committed": isControl, "status": p.Status, "start_date": p.StartDate, "end_date": p.EndDate}
	if p.Pending != nil {
		payload["proposed_start_date"] = p.Pending.StartDate
		payload["proposed_end_date"] = p.Pending.EndDate
		payload["last_status"] = p.Pending.LastStatus
	}
	return payload
}
