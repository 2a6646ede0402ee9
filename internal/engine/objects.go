package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"oversight/internal/domain"
	"oversight/internal/engine/auth"
	"oversight/internal/events"
	"oversight/internal/repo"
)

// MaxDocumentBytes caps a single uploaded document.
const MaxDocumentBytes = 100 << 20

// WorkItemInput describes one work item of a new object's schedule.
type WorkItemInput struct {
	ID          string
	Name        string
	Description string
	Unit        string
	Amount      float64
	StartDate   string
	EndDate     string
}

type ScheduleInput struct {
	StartDate string
	EndDate   string
	WorkItems []WorkItemInput
}

// ObjectCreateOptions are parameters for creating an object.
type ObjectCreateOptions struct {
	ID          string
	Name        string
	Address     string
	Description string
	Polygon     []domain.Point
	Schedule    *ScheduleInput
}

// DocumentUpload is a file to store and attach.
type DocumentUpload struct {
	Name string
	Type string
	Data []byte
}

// CreateObject builds an object in planned together with its active journal.
func (e Engine) CreateObject(ctx context.Context, actor domain.Actor, opts ObjectCreateOptions) (domain.ConstructionObject, error) {
	if err := auth.RequireAdmin(actor.Role, "create objects"); err != nil {
		return domain.ConstructionObject{}, err
	}
	if strings.TrimSpace(opts.Name) == "" {
		return domain.ConstructionObject{}, invalidInput("name is required")
	}
	if len(opts.Polygon) < 3 {
		return domain.ConstructionObject{}, invalidInput("polygon needs at least 3 points, got %d", len(opts.Polygon))
	}
	for i, p := range opts.Polygon {
		if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
			return domain.ConstructionObject{}, invalidInput("polygon point %d is out of range", i)
		}
	}
	schedule, err := buildSchedule(opts.Schedule)
	if err != nil {
		return domain.ConstructionObject{}, err
	}
	now := e.stamp()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	o := domain.ConstructionObject{
		ID:          id,
		Name:        strings.TrimSpace(opts.Name),
		Address:     opts.Address,
		Description: opts.Description,
		Polygon:     opts.Polygon,
		Schedule:    schedule,
		Documents:   []domain.Document{},
		Status:      domain.ObjectPlanned,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	j := domain.Journal{
		ID:        uuid.NewString(),
		ObjectID:  o.ID,
		Status:    domain.JournalActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = e.tx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertObject(ctx, tx, o); err != nil {
			return err
		}
		if err := e.Repo.InsertJournal(ctx, tx, j); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ObjectCreated, o.ID, "object", o.ID, actor.ID, events.EventPayload{
			"name": o.Name, "status": o.Status, "journal_id": j.ID,
		})
	})
	if err != nil {
		return domain.ConstructionObject{}, err
	}
	e.logger().Info("object created", "object_id", o.ID, "journal_id", j.ID, "actor", actor.ID)
	return o, nil
}

func buildSchedule(in *ScheduleInput) (*domain.Schedule, error) {
	if in == nil {
		return nil, nil
	}
	if err := validateRange(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	s := &domain.Schedule{
		Plan:      domain.Plan{StartDate: in.StartDate, EndDate: in.EndDate, Status: domain.WorkNotStarted},
		WorkItems: make([]domain.WorkItem, 0, len(in.WorkItems)),
	}
	seen := map[string]struct{}{}
	for i, wi := range in.WorkItems {
		if strings.TrimSpace(wi.Name) == "" {
			return nil, invalidInput("work item %d needs a name", i)
		}
		if wi.Amount < 0 {
			return nil, invalidInput("work item %q has a negative amount", wi.Name)
		}
		if err := validateRange(wi.StartDate, wi.EndDate); err != nil {
			return nil, err
		}
		id := wi.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := seen[id]; dup {
			return nil, invalidInput("duplicate work item id %s", id)
		}
		seen[id] = struct{}{}
		s.WorkItems = append(s.WorkItems, domain.WorkItem{
			ID:          id,
			Name:        strings.TrimSpace(wi.Name),
			Description: wi.Description,
			Unit:        wi.Unit,
			Amount:      wi.Amount,
			Plan:        domain.Plan{StartDate: wi.StartDate, EndDate: wi.EndDate, Status: domain.WorkNotStarted},
		})
	}
	return s, nil
}

// mutateObject loads an object, applies fn and saves it in one transaction.
// A status change made by fn is recorded as its own event.
func (e Engine) mutateObject(ctx context.Context, actor domain.Actor, objectID string, fn func(tx *sql.Tx, o *domain.ConstructionObject) error) (domain.ConstructionObject, error) {
	var out domain.ConstructionObject
	err := e.tx(ctx, func(tx *sql.Tx) error {
		o, err := e.Repo.GetObjectTx(ctx, tx, objectID)
		if err != nil {
			return wrapNotFound(err, "object", objectID)
		}
		prev := o.Status
		if err := fn(tx, &o); err != nil {
			return err
		}
		o.UpdatedAt = e.stamp()
		if err := e.Repo.SaveObject(ctx, tx, o); err != nil {
			return err
		}
		if o.Status != prev {
			if err := e.Events.Append(ctx, tx, events.ObjectStatusChanged, o.ID, "object", o.ID, actor.ID, events.EventPayload{
				"from": prev, "to": o.Status,
			}); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.ConstructionObject{}, err
	}
	return out, nil
}

// AssignControl records the construction-control user. The object stays planned.
func (e Engine) AssignControl(ctx context.Context, actor domain.Actor, objectID, controlUserID string) (domain.ConstructionObject, error) {
	if err := auth.RequireAdmin(actor.Role, "assign construction control"); err != nil {
		return domain.ConstructionObject{}, err
	}
	if err := e.lookupUser(ctx, controlUserID, "control user", domain.RoleControl); err != nil {
		return domain.ConstructionObject{}, err
	}
	return e.mutateObject(ctx, actor, objectID, func(tx *sql.Tx, o *domain.ConstructionObject) error {
		if o.Status != domain.ObjectPlanned {
			return invalidState("object %s is %s, control can only be assigned while planned", o.ID, o.Status)
		}
		o.ControlUserID = controlUserID
		return e.Events.Append(ctx, tx, events.ObjectControlAssigned, o.ID, "object", o.ID, actor.ID, events.EventPayload{
			"control_user_id": controlUserID,
		})
	})
}

// ActivateWithContractor appoints contractor and control and moves the object to assigned.
func (e Engine) ActivateWithContractor(ctx context.Context, actor domain.Actor, objectID, contractorID, controlUserID string) (domain.ConstructionObject, error) {
	if err := auth.Require(actor.Role, "activate objects", domain.RoleAdmin, domain.RoleControl); err != nil {
		return domain.ConstructionObject{}, err
	}
	if err := e.lookupUser(ctx, contractorID, "contractor", domain.RoleContractor); err != nil {
		return domain.ConstructionObject{}, err
	}
	if err := e.lookupUser(ctx, controlUserID, "control user", domain.RoleControl); err != nil {
		return domain.ConstructionObject{}, err
	}
	return e.mutateObject(ctx, actor, objectID, func(tx *sql.Tx, o *domain.ConstructionObject) error {
		if o.Status != domain.ObjectPlanned {
			return invalidState("object %s is %s, only planned objects can be activated", o.ID, o.Status)
		}
		o.ContractorUserID = contractorID
		o.ControlUserID = controlUserID
		o.Status = domain.ObjectAssigned
		return nil
	})
}

// AttachObjectDocument stores a file and appends its metadata. An opening
// act is accepted only on an assigned object and moves it to pending_activation.
func (e Engine) AttachObjectDocument(ctx context.Context, actor domain.Actor, objectID string, up DocumentUpload) (domain.ConstructionObject, error) {
	if !actor.Role.Valid() {
		return domain.ConstructionObject{}, auth.ForbiddenError{Role: actor.Role, Action: "attach documents"}
	}
	current, err := e.Repo.GetObject(ctx, objectID)
	if err != nil {
		return domain.ConstructionObject{}, wrapNotFound(err, "object", objectID)
	}
	if strings.TrimSpace(up.Type) == domain.DocumentOpeningAct {
		if err := openingActAllowed(current); err != nil {
			return domain.ConstructionObject{}, err
		}
	}
	doc, err := e.storeDocument(ctx, objectID, up)
	if err != nil {
		return domain.ConstructionObject{}, err
	}
	if doc.Type == domain.DocumentOpeningAct {
		doc.Status = domain.DocumentAwaitingApproval
	}
	o, err := e.mutateObject(ctx, actor, objectID, func(tx *sql.Tx, o *domain.ConstructionObject) error {
		if doc.Type == domain.DocumentOpeningAct {
			if err := openingActAllowed(*o); err != nil {
				return err
			}
		}
		o.Documents = append(o.Documents, doc)
		if doc.Type == domain.DocumentOpeningAct && o.Status == domain.ObjectAssigned {
			o.Status = domain.ObjectPendingActivation
		}
		return e.Events.Append(ctx, tx, events.ObjectDocumentAttached, o.ID, "document", doc.ID, actor.ID, events.EventPayload{
			"type": doc.Type, "name": doc.Name,
		})
	})
	if err != nil {
		e.discardFile(objectID, doc.Path)
		return domain.ConstructionObject{}, err
	}
	return o, nil
}

// openingActAllowed accepts an opening act only on an assigned object with
// no act awaiting approval.
func openingActAllowed(o domain.ConstructionObject) error {
	if hasAwaitingOpeningAct(o) {
		return invalidState("object %s already has an opening act awaiting approval", o.ID)
	}
	if o.Status != domain.ObjectAssigned {
		return invalidState("object %s is %s, opening acts are accepted only when assigned", o.ID, o.Status)
	}
	return nil
}

func hasAwaitingOpeningAct(o domain.ConstructionObject) bool {
	for _, d := range o.Documents {
		if d.Type == domain.DocumentOpeningAct && d.Status == domain.DocumentAwaitingApproval {
			return true
		}
	}
	return false
}

// storeDocument saves the bytes and returns the metadata to embed.
func (e Engine) storeDocument(ctx context.Context, owner string, up DocumentUpload) (domain.Document, error) {
	if e.Files == nil {
		return domain.Document{}, invalidState("no file store configured")
	}
	if strings.TrimSpace(up.Name) == "" {
		return domain.Document{}, invalidInput("document name is required")
	}
	if len(up.Data) > MaxDocumentBytes {
		return domain.Document{}, invalidInput("document %s exceeds %d bytes", up.Name, MaxDocumentBytes)
	}
	docType := strings.TrimSpace(up.Type)
	if docType == "" {
		docType = "document"
	}
	st, err := e.Files.Save(ctx, owner, up.Name, up.Data)
	if err != nil {
		return domain.Document{}, err
	}
	now := e.stamp()
	return domain.Document{
		ID:        st.ID,
		Name:      up.Name,
		Path:      st.Path,
		Type:      docType,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApproveOpeningAct settles an opening act awaiting approval. Approval
// activates the object and appoints the approver as inspector; rejection
// returns the object to assigned and drops the document and its file.
func (e Engine) ApproveOpeningAct(ctx context.Context, actor domain.Actor, objectID, documentID string, approved bool) (domain.ConstructionObject, error) {
	if err := auth.RequireSupervision(actor.Role, "approve opening acts"); err != nil {
		return domain.ConstructionObject{}, err
	}
	var discarded string
	o, err := e.mutateObject(ctx, actor, objectID, func(tx *sql.Tx, o *domain.ConstructionObject) error {
		idx := o.DocumentIndex(documentID)
		if idx < 0 || o.Documents[idx].Type != domain.DocumentOpeningAct {
			return notFound("opening act", documentID)
		}
		doc := &o.Documents[idx]
		if doc.Status != domain.DocumentAwaitingApproval {
			return invalidState("opening act %s is %s, not awaiting approval", documentID, doc.Status)
		}
		if approved {
			doc.Status = domain.DocumentApproved
			doc.UpdatedAt = e.stamp()
			o.Status = domain.ObjectActive
			o.InspectorUserID = actor.ID
		} else {
			discarded = doc.Path
			o.Documents = append(o.Documents[:idx], o.Documents[idx+1:]...)
			o.Status = domain.ObjectAssigned
		}
		return e.Events.Append(ctx, tx, events.OpeningActResolved, o.ID, "document", documentID, actor.ID, events.EventPayload{
			"approved": approved,
		})
	})
	if err != nil {
		return domain.ConstructionObject{}, err
	}
	if discarded != "" {
		e.discardFile(objectID, discarded)
	}
	return o, nil
}

// GetObject returns one object.
func (e Engine) GetObject(ctx context.Context, objectID string) (domain.ConstructionObject, error) {
	o, err := e.Repo.GetObject(ctx, objectID)
	return o, wrapNotFound(err, "object", objectID)
}

// ListObjects returns the objects visible to actor: admin sees all, control
// sees its own plus every planned object, contractor and inspector see theirs.
func (e Engine) ListObjects(ctx context.Context, actor domain.Actor, status string) ([]domain.ConstructionObject, error) {
	f := repo.ObjectFilters{Status: status}
	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleControl:
		f.ControlUserID = actor.ID
		f.OrPlanned = true
	case domain.RoleContractor:
		f.ContractorUserID = actor.ID
	case domain.RoleInspector:
		f.InspectorUserID = actor.ID
	default:
		return nil, auth.ForbiddenError{Role: actor.Role, Action: "list objects"}
	}
	return e.Repo.ListObjects(ctx, f)
}

// ArchiveJournal closes an object's journal to new violations.
func (e Engine) ArchiveJournal(ctx context.Context, actor domain.Actor, objectID string) (domain.Journal, error) {
	if err := auth.RequireAdmin(actor.Role, "archive journals"); err != nil {
		return domain.Journal{}, err
	}
	j, err := e.Repo.GetJournalByObject(ctx, objectID)
	if err != nil {
		return domain.Journal{}, wrapNotFound(err, "journal of object", objectID)
	}
	if j.Status == domain.JournalArchived {
		return j, nil
	}
	j.Status = domain.JournalArchived
	j.UpdatedAt = e.stamp()
	err = e.tx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateJournalStatus(ctx, tx, j.ID, j.Status, j.UpdatedAt); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.JournalArchived, objectID, "journal", j.ID, actor.ID, nil)
	})
	if err != nil {
		return domain.Journal{}, err
	}
	return j, nil
}

// Journal returns the journal of an object.
func (e Engine) Journal(ctx context.Context, objectID string) (domain.Journal, error) {
	j, err := e.Repo.GetJournalByObject(ctx, objectID)
	return j, wrapNotFound(err, "journal of object", objectID)
}
