package domain

// ObjectStatus is the lifecycle state of a construction object.
type ObjectStatus string

const (
	ObjectPlanned           ObjectStatus = "planned"
	ObjectAssigned          ObjectStatus = "assigned"
	ObjectPendingActivation ObjectStatus = "pending_activation"
	ObjectActive            ObjectStatus = "active"
	ObjectSuspended         ObjectStatus = "suspended"
	ObjectPendingFixes      ObjectStatus = "pending_fixes"
	ObjectFixing            ObjectStatus = "fixing"
	ObjectPendingApproval   ObjectStatus = "pending_approval"
	ObjectCompleted         ObjectStatus = "completed"
	ObjectAccepted          ObjectStatus = "accepted"
)

// WorkStatus is shared by work items and the object-level schedule.
type WorkStatus string

const (
	WorkNotStarted               WorkStatus = "not_started"
	WorkInProgress               WorkStatus = "in_progress"
	WorkSuspended                WorkStatus = "suspended"
	WorkViolation                WorkStatus = "violation"
	WorkSevereViolation          WorkStatus = "severe_violation"
	WorkViolationFixed           WorkStatus = "violation_fixed"
	WorkSevereViolationFixed     WorkStatus = "severe_violation_fixed"
	WorkCompleted                WorkStatus = "completed"
	WorkAccepted                 WorkStatus = "accepted"
	WorkPendingRescheduleApprove WorkStatus = "pending_reschedule_approve"
)

var workStatuses = map[WorkStatus]struct{}{
	WorkNotStarted: {}, WorkInProgress: {}, WorkSuspended: {}, WorkViolation: {},
	WorkSevereViolation: {}, WorkViolationFixed: {}, WorkSevereViolationFixed: {},
	WorkCompleted: {}, WorkAccepted: {}, WorkPendingRescheduleApprove: {},
}

// Valid reports whether s is a known work status token.
func (s WorkStatus) Valid() bool {
	_, ok := workStatuses[s]
	return ok
}

// DocumentType values with workflow meaning. Other types are stored verbatim.
const (
	DocumentOpeningAct = "opening_act"
)

// DocumentStatus values used by opening acts.
const (
	DocumentAwaitingApproval = "awaiting_approval"
	DocumentApproved         = "approved"
	DocumentRejected         = "rejected"
)

type JournalStatus string

const (
	JournalActive   JournalStatus = "active"
	JournalArchived JournalStatus = "archived"
)

// ViolationStatus values. in_progress, verified and rejected are part of the
// wire vocabulary but no operation assigns them.
type ViolationStatus string

const (
	ViolationOpen       ViolationStatus = "open"
	ViolationInProgress ViolationStatus = "in_progress"
	ViolationFixed      ViolationStatus = "fixed"
	ViolationVerified   ViolationStatus = "verified"
	ViolationRejected   ViolationStatus = "rejected"
)

type Fixability string

const (
	Fixable    Fixability = "fixable"
	NonFixable Fixability = "non_fixable"
)

func (f Fixability) Valid() bool { return f == Fixable || f == NonFixable }

type ViolationType string

const (
	ViolationSimple ViolationType = "simple"
	ViolationSevere ViolationType = "severe"
)

func (t ViolationType) Valid() bool { return t == ViolationSimple || t == ViolationSevere }

type ResponseStatus string

const (
	ResponseAwaitingApproval ResponseStatus = "awaiting_approval"
	ResponseApproved         ResponseStatus = "approved"
	ResponseNeedsRevision    ResponseStatus = "needs_revision"
)

// Role is the actor capability attached to a user.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleControl    Role = "control"
	RoleContractor Role = "contractor"
	RoleInspector  Role = "inspector"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleControl, RoleContractor, RoleInspector:
		return true
	}
	return false
}

// Supervises reports whether the role belongs to the oversight side
// (construction control or inspector).
func (r Role) Supervises() bool { return r == RoleControl || r == RoleInspector }

type SampleStatus string

const (
	SamplePending    SampleStatus = "pending"
	SampleInProgress SampleStatus = "in_progress"
	SampleCompleted  SampleStatus = "completed"
)

var sampleOrder = map[SampleStatus]int{SamplePending: 0, SampleInProgress: 1, SampleCompleted: 2}

func (s SampleStatus) Valid() bool {
	_, ok := sampleOrder[s]
	return ok
}

// Follows reports whether s comes strictly after prev; samples only move forward.
func (s SampleStatus) Follows(prev SampleStatus) bool {
	return s.Valid() && prev.Valid() && sampleOrder[s] > sampleOrder[prev]
}

