package domain

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Document is file metadata embedded in an aggregate. The file store owns the bytes.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"createdAt" format:"date-time"`
	UpdatedAt string `json:"updatedAt" format:"date-time"`
}

// Proposal holds contractor-requested dates awaiting a control decision and
// the status to restore once the decision is made.
type Proposal struct {
	StartDate  string     `json:"updatedStartDate"`
	EndDate    string     `json:"updatedEndDate"`
	LastStatus WorkStatus `json:"lastStatus,omitempty"`
}

// Plan is the negotiable part of a schedule or work item. Status is
// pending_reschedule_approve exactly when Pending is set; only the methods
// below and the negotiator mutate the pair.
type Plan struct {
	StartDate string     `json:"startDate"`
	EndDate   string     `json:"endDate"`
	Status    WorkStatus `json:"status"`
	Pending   *Proposal  `json:"pending,omitempty"`
}

// IsPending reports whether a reschedule awaits approval.
func (p Plan) IsPending() bool { return p.Pending != nil }

// SetStatus assigns a work status directly. A pending reschedule is dropped
// so that the status and staging never disagree.
func (p *Plan) SetStatus(s WorkStatus) {
	p.Pending = nil
	p.Status = s
}

type WorkItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Unit        string  `json:"unit"`
	Amount      float64 `json:"amount"`
	Plan
}

type Schedule struct {
	Plan
	WorkItems []WorkItem `json:"workItems"`
}

// WorkItem returns a pointer into the schedule's item list.
func (s *Schedule) WorkItem(id string) (*WorkItem, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.WorkItems {
		if s.WorkItems[i].ID == id {
			return &s.WorkItems[i], true
		}
	}
	return nil, false
}

// ConstructionObject is a municipal improvement project under oversight.
// User references are plain ids resolved through the user directory.
type ConstructionObject struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Address          string       `json:"address"`
	Description      string       `json:"description"`
	Polygon          []Point      `json:"polygon"`
	Schedule         *Schedule    `json:"schedule,omitempty"`
	Documents        []Document   `json:"documents"`
	Status           ObjectStatus `json:"status"`
	CreatedBy        string       `json:"createdBy"`
	ControlUserID    string       `json:"controlUserId,omitempty"`
	ContractorUserID string       `json:"contractorUserId,omitempty"`
	InspectorUserID  string       `json:"inspectorUserId,omitempty"`
	CreatedAt        string       `json:"createdAt" format:"date-time"`
	UpdatedAt        string       `json:"updatedAt" format:"date-time"`
}

// DocumentIndex returns the index of the document with the given id, or -1.
func (o ConstructionObject) DocumentIndex(id string) int {
	for i, d := range o.Documents {
		if d.ID == id {
			return i
		}
	}
	return -1
}

type Journal struct {
	ID        string        `json:"id"`
	ObjectID  string        `json:"objectId"`
	Status    JournalStatus `json:"status"`
	CreatedAt string        `json:"createdAt" format:"date-time"`
	UpdatedAt string        `json:"updatedAt" format:"date-time"`
}

// Location is a client-reported position attached to a violation.
type Location struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp string  `json:"timestamp"`
}

type Violation struct {
	ID                        string              `json:"id"`
	JournalID                 string              `json:"journalId"`
	Category                  string              `json:"category"`
	Fixability                Fixability          `json:"fixability"`
	Type                      ViolationType       `json:"type"`
	Name                      string              `json:"name"`
	FixDeadline               string              `json:"fixDeadline" format:"date-time"`
	Status                    ViolationStatus     `json:"status"`
	Documents                 []Document          `json:"documents"`
	Location                  *Location           `json:"locationData,omitempty"`
	InspectorLocationVerified bool                `json:"inspectorLocationVerified"`
	Responses                 []ViolationResponse `json:"responses,omitempty"`
	CreatedAt                 string              `json:"createdAt" format:"date-time"`
	UpdatedAt                 string              `json:"updatedAt" format:"date-time"`
}

type ViolationResponse struct {
	ID                string         `json:"id"`
	ViolationID       string         `json:"violationId"`
	Description       string         `json:"description,omitempty"`
	Status            ResponseStatus `json:"status"`
	ControllerComment string         `json:"controllerComment,omitempty"`
	Documents         []Document     `json:"documents"`
	CreatedAt         string         `json:"createdAt" format:"date-time"`
	UpdatedAt         string         `json:"updatedAt" format:"date-time"`
}

// DeliveryNote is a delivery-note entry (TTN) filed against a work item,
// with the scanned waybills and quality certificates attached to it.
type DeliveryNote struct {
	ID          string     `json:"id"`
	ObjectID    string     `json:"objectId"`
	WorkItemID  string     `json:"workItemId"`
	Description string     `json:"description,omitempty"`
	Documents   []Document `json:"documents"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   string     `json:"createdAt" format:"date-time"`
	UpdatedAt   string     `json:"updatedAt" format:"date-time"`
}

// LabSample is a request for laboratory testing of a material on an object.
type LabSample struct {
	ID           string       `json:"id"`
	ObjectID     string       `json:"objectId"`
	MaterialName string       `json:"materialName"`
	Description  string       `json:"description"`
	Status       SampleStatus `json:"status"`
	CreatedBy    string       `json:"createdBy"`
	CreatedAt    string       `json:"createdAt" format:"date-time"`
	UpdatedAt    string       `json:"updatedAt" format:"date-time"`
}

// User is a directory entry. The workflow never mutates users.
type User struct {
	ID           string `json:"id"`
	Login        string `json:"login"`
	DisplayName  string `json:"displayName"`
	Role         Role   `json:"role"`
	Organization string `json:"organization,omitempty"`
	CreatedAt    string `json:"createdAt" format:"date-time"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ObjectID   string `json:"object_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
