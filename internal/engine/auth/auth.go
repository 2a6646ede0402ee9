package auth

import (
	"fmt"

	"oversight/internal/domain"
)

// ForbiddenError indicates the actor's role may not perform an action.
type ForbiddenError struct {
	Role   domain.Role
	Action string
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("%s requires an authenticated actor", e.Action)
	}
	return fmt.Sprintf("role %s may not %s", e.Role, e.Action)
}

// Is lets callers match with errors.Is(err, domain.ErrForbidden).
func (e ForbiddenError) Is(target error) bool { return target == domain.ErrForbidden }

// Capability groups roles that share a work-status table.
type Capability string

const (
	CapContractor  Capability = "contractor"
	CapSupervision Capability = "supervision"
)

// CapabilityOf maps a role to its work-status capability. Admin has none.
func CapabilityOf(r domain.Role) (Capability, bool) {
	switch r {
	case domain.RoleContractor:
		return CapContractor, true
	case domain.RoleControl, domain.RoleInspector:
		return CapSupervision, true
	}
	return "", false
}

type statusSet map[domain.WorkStatus]struct{}

func setOf(statuses ...domain.WorkStatus) statusSet {
	s := make(statusSet, len(statuses))
	for _, st := range statuses {
		s[st] = struct{}{}
	}
	return s
}

func (s statusSet) has(st domain.WorkStatus) bool {
	_, ok := s[st]
	return ok
}

// permittedTargets lists the work statuses each capability may request.
var permittedTargets = map[Capability]statusSet{
	CapContractor: setOf(
		domain.WorkInProgress,
		domain.WorkCompleted,
		domain.WorkViolationFixed,
		domain.WorkSevereViolationFixed,
	),
	CapSupervision: setOf(
		domain.WorkInProgress,
		domain.WorkAccepted,
		domain.WorkViolation,
		domain.WorkSevereViolation,
		domain.WorkViolationFixed,
		domain.WorkSevereViolationFixed,
	),
}

// fixApprovalStatuses trigger the supervision fix-approval gesture.
var fixApprovalStatuses = setOf(domain.WorkViolationFixed, domain.WorkSevereViolationFixed)

// violationStatuses move the object into pending_fixes.
var violationStatuses = setOf(domain.WorkViolation, domain.WorkSevereViolation)

// PermittedTargets returns the statuses role may request, sorted in declaration order.
func PermittedTargets(r domain.Role) []domain.WorkStatus {
	c, ok := CapabilityOf(r)
	if !ok {
		return nil
	}
	var out []domain.WorkStatus
	for _, st := range allWorkStatuses {
		if permittedTargets[c].has(st) {
			out = append(out, st)
		}
	}
	return out
}

var allWorkStatuses = []domain.WorkStatus{
	domain.WorkNotStarted, domain.WorkInProgress, domain.WorkSuspended, domain.WorkViolation,
	domain.WorkSevereViolation, domain.WorkViolationFixed, domain.WorkSevereViolationFixed,
	domain.WorkCompleted, domain.WorkAccepted, domain.WorkPendingRescheduleApprove,
}

// CanRequest reports whether role may set a work item to target.
func CanRequest(r domain.Role, target domain.WorkStatus) bool {
	c, ok := CapabilityOf(r)
	return ok && permittedTargets[c].has(target)
}

// IsFixApproval reports whether a supervision actor's update is the
// approve-the-fix gesture: the item already reports a fix, or a fix status is requested.
func IsFixApproval(r domain.Role, current, requested domain.WorkStatus) bool {
	c, ok := CapabilityOf(r)
	if !ok || c != CapSupervision {
		return false
	}
	return fixApprovalStatuses.has(current) || fixApprovalStatuses.has(requested)
}

// IsViolationStatus reports whether st records a violation on a work item.
func IsViolationStatus(st domain.WorkStatus) bool { return violationStatuses.has(st) }

// IsFixStatus reports whether st records a contractor-reported fix.
func IsFixStatus(st domain.WorkStatus) bool { return fixApprovalStatuses.has(st) }

// Require returns a ForbiddenError unless role is one of allowed.
func Require(r domain.Role, action string, allowed ...domain.Role) error {
	for _, a := range allowed {
		if r == a {
			return nil
		}
	}
	return ForbiddenError{Role: r, Action: action}
}

func RequireAdmin(r domain.Role, action string) error {
	return Require(r, action, domain.RoleAdmin)
}

func RequireControl(r domain.Role, action string) error {
	return Require(r, action, domain.RoleControl)
}

func RequireSupervision(r domain.Role, action string) error {
	return Require(r, action, domain.RoleControl, domain.RoleInspector)
}
