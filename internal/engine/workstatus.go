package engine

import (
	"context"
	"database/sql"

	"oversight/internal/domain"
	"oversight/internal/engine/auth"
	"oversight/internal/events"
)

// UpdateWorkItemStatus applies a role-gated work-item status change and the
// object status it implies.
//
// A supervision actor touching an item that reports a fix (or requesting a
// fix status) approves the fix: the object returns to active and the item to
// in_progress, whatever status was requested.
func (e Engine) UpdateWorkItemStatus(ctx context.Context, actor domain.Actor, objectID, workItemID string, requested domain.WorkStatus) (domain.ConstructionObject, error) {
	if !requested.Valid() {
		return domain.ConstructionObject{}, invalidInput("unknown work status %q", requested)
	}
	if _, ok := auth.CapabilityOf(actor.Role); !ok {
		return domain.ConstructionObject{}, auth.ForbiddenError{Role: actor.Role, Action: "change work status"}
	}
	return e.mutateObject(ctx, actor, objectID, func(tx *sql.Tx, o *domain.ConstructionObject) error {
		item, err := workItemOf(o, workItemID)
		if err != nil {
			return err
		}
		from := item.Status
		fixApproved := auth.IsFixApproval(actor.Role, item.Status, requested)
		switch {
		case fixApproved:
			o.Status = domain.ObjectActive
			item.SetStatus(domain.WorkInProgress)
		case !auth.CanRequest(actor.Role, requested):
			return auth.ForbiddenError{Role: actor.Role, Action: "set work status " + string(requested)}
		default:
			if auth.IsViolationStatus(requested) {
				o.Status = domain.ObjectPendingFixes
			} else if actor.Role == domain.RoleContractor && auth.IsFixStatus(requested) {
				o.Status = domain.ObjectPendingApproval
			}
			item.SetStatus(requested)
		}
		return e.Events.Append(ctx, tx, events.WorkItemStatusChanged, o.ID, "work_item", item.ID, actor.ID, events.EventPayload{
			"from": from, "to": item.Status, "requested": requested, "fix_approved": fixApproved,
		})
	})
}
