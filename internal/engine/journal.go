package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"oversight/internal/domain"
	"oversight/internal/engine/auth"
	"oversight/internal/events"
)

// ViolationInput describes a new violation. A nil FixDeadlineDays takes the
// configured default.
type ViolationInput struct {
	Category                  string
	Fixability                domain.Fixability
	Type                      domain.ViolationType
	Name                      string
	FixDeadlineDays           *int
	Location                  *domain.Location
	InspectorLocationVerified bool
}

// RaiseViolation records a violation in the object's journal. Location is
// stored as reported by the caller.
func (e Engine) RaiseViolation(ctx context.Context, actor domain.Actor, objectID string, in ViolationInput) (domain.Violation, error) {
	if err := auth.RequireSupervision(actor.Role, "raise violations"); err != nil {
		return domain.Violation{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return domain.Violation{}, invalidInput("violation name is required")
	}
	if !in.Fixability.Valid() {
		return domain.Violation{}, invalidInput("unknown fixability %q", in.Fixability)
	}
	if !in.Type.Valid() {
		return domain.Violation{}, invalidInput("unknown violation type %q", in.Type)
	}
	days := e.Config.Violations.DefaultFixDeadlineDays
	if in.FixDeadlineDays != nil {
		days = *in.FixDeadlineDays
	}
	if days < 0 {
		return domain.Violation{}, invalidInput("fix deadline days must not be negative")
	}
	j, err := e.Journal(ctx, objectID)
	if err != nil {
		return domain.Violation{}, err
	}
	if j.Status != domain.JournalActive {
		return domain.Violation{}, invalidState("journal of object %s is %s", objectID, j.Status)
	}
	now := e.now().UTC()
	v := domain.Violation{
		ID:                        uuid.NewString(),
		JournalID:                 j.ID,
		Category:                  in.Category,
		Fixability:                in.Fixability,
		Type:                      in.Type,
		Name:                      strings.TrimSpace(in.Name),
		FixDeadline:               now.Add(time.Duration(days) * 24 * time.Hour).Format(time.RFC3339),
		Status:                    domain.ViolationOpen,
		Documents:                 []domain.Document{},
		Location:                  in.Location,
		InspectorLocationVerified: in.InspectorLocationVerified,
		CreatedAt:                 now.Format(time.RFC3339),
		UpdatedAt:                 now.Format(time.RFC3339),
	}
	err = e.tx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertViolation(ctx, tx, v); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ViolationRaised, objectID, "violation", v.ID, actor.ID, events.EventPayload{
			"type": v.Type, "fixability": v.Fixability, "fix_deadline": v.FixDeadline, "location_verified": v.InspectorLocationVerified,
		})
	})
	if err != nil {
		return domain.Violation{}, err
	}
	e.logger().Info("violation raised", "object_id", objectID, "violation_id", v.ID, "type", v.Type)
	return v, nil
}

// violationOf loads a violation and checks it belongs to the object's journal.
func (e Engine) violationOf(ctx context.Context, tx *sql.Tx, objectID, violationID string) (domain.Violation, error) {
	j, err := e.Journal(ctx, objectID)
	if err != nil {
		return domain.Violation{}, err
	}
	v, err := e.Repo.GetViolationTx(ctx, tx, violationID)
	if err != nil {
		return domain.Violation{}, wrapNotFound(err, "violation", violationID)
	}
	if v.JournalID != j.ID {
		return domain.Violation{}, notFound("violation", violationID+" in object "+objectID)
	}
	return v, nil
}

// responseOf loads a response and checks the object/violation chain.
func (e Engine) responseOf(ctx context.Context, tx *sql.Tx, objectID, violationID, responseID string) (domain.Violation, domain.ViolationResponse, error) {
	v, err := e.violationOf(ctx, tx, objectID, violationID)
	if err != nil {
		return domain.Violation{}, domain.ViolationResponse{}, err
	}
	r, err := e.Repo.GetResponseTx(ctx, tx, responseID)
	if err != nil {
		return domain.Violation{}, domain.ViolationResponse{}, wrapNotFound(err, "response", responseID)
	}
	if r.ViolationID != v.ID {
		return domain.Violation{}, domain.ViolationResponse{}, notFound("response", responseID+" of violation "+violationID)
	}
	return v, r, nil
}

// GetViolation returns one violation of an object with its responses.
func (e Engine) GetViolation(ctx context.Context, objectID, violationID string) (domain.Violation, error) {
	v, err := e.violationOf(ctx, nil, objectID, violationID)
	if err != nil {
		return domain.Violation{}, err
	}
	v.Responses, err = e.Repo.ListResponses(ctx, v.ID)
	return v, err
}

// AttachViolationDocument stores evidence for a violation.
func (e Engine) AttachViolationDocument(ctx context.Context, actor domain.Actor, objectID, violationID string, up DocumentUpload) (domain.Violation, error) {
	if err := auth.RequireSupervision(actor.Role, "attach violation documents"); err != nil {
		return domain.Violation{}, err
	}
	if _, err := e.violationOf(ctx, nil, objectID, violationID); err != nil {
		return domain.Violation{}, err
	}
	doc, err := e.storeDocument(ctx, objectID, up)
	if err != nil {
		return domain.Violation{}, err
	}
	var out domain.Violation
	err = e.tx(ctx, func(tx *sql.Tx) error {
		v, err := e.violationOf(ctx, tx, objectID, violationID)
		if err != nil {
			return err
		}
		v.Documents = append(v.Documents, doc)
		v.UpdatedAt = e.stamp()
		if err := e.Repo.SaveViolation(ctx, tx, v); err != nil {
			return err
		}
		out = v
		return e.Events.Append(ctx, tx, events.ViolationDocumentAttached, objectID, "violation", v.ID, actor.ID, events.EventPayload{
			"document_id": doc.ID, "name": doc.Name,
		})
	})
	if err != nil {
		e.discardFile(objectID, doc.Path)
		return domain.Violation{}, err
	}
	return out, nil
}

// CreateResponse records a contractor's remediation for a violation.
func (e Engine) CreateResponse(ctx context.Context, actor domain.Actor, objectID, violationID, description string) (domain.ViolationResponse, error) {
	if err := auth.Require(actor.Role, "respond to violations", domain.RoleContractor); err != nil {
		return domain.ViolationResponse{}, err
	}
	now := e.stamp()
	r := domain.ViolationResponse{
		ID:          uuid.NewString(),
		ViolationID: violationID,
		Description: description,
		Status:      domain.ResponseAwaitingApproval,
		Documents:   []domain.Document{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.tx(ctx, func(tx *sql.Tx) error {
		if _, err := e.violationOf(ctx, tx, objectID, violationID); err != nil {
			return err
		}
		if err := e.Repo.InsertResponse(ctx, tx, r); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ViolationResponseCreated, objectID, "violation_response", r.ID, actor.ID, events.EventPayload{
			"violation_id": violationID,
		})
	})
	if err != nil {
		return domain.ViolationResponse{}, err
	}
	return r, nil
}

// AttachResponseDocument stores a file for a response.
func (e Engine) AttachResponseDocument(ctx context.Context, actor domain.Actor, objectID, violationID, responseID string, up DocumentUpload) (domain.ViolationResponse, error) {
	if err := auth.Require(actor.Role, "attach response documents", domain.RoleContractor); err != nil {
		return domain.ViolationResponse{}, err
	}
	if _, _, err := e.responseOf(ctx, nil, objectID, violationID, responseID); err != nil {
		return domain.ViolationResponse{}, err
	}
	doc, err := e.storeDocument(ctx, objectID, up)
	if err != nil {
		return domain.ViolationResponse{}, err
	}
	var out domain.ViolationResponse
	err = e.tx(ctx, func(tx *sql.Tx) error {
		_, r, err := e.responseOf(ctx, tx, objectID, violationID, responseID)
		if err != nil {
			return err
		}
		r.Documents = append(r.Documents, doc)
		r.UpdatedAt = e.stamp()
		if err := e.Repo.SaveResponse(ctx, tx, r); err != nil {
			return err
		}
		out = r
		return e.Events.Append(ctx, tx, events.ViolationResponseDocument, objectID, "violation_response", r.ID, actor.ID, events.EventPayload{
			"document_id": doc.ID, "name": doc.Name,
		})
	})
	if err != nil {
		e.discardFile(objectID, doc.Path)
		return domain.ViolationResponse{}, err
	}
	return out, nil
}

// SetResponseStatus records the supervision verdict on a response. Approval
// marks the violation fixed whatever its type or fixability.
func (e Engine) SetResponseStatus(ctx context.Context, actor domain.Actor, objectID, violationID, responseID string, status domain.ResponseStatus, comment string) (domain.ViolationResponse, error) {
	if err := auth.RequireSupervision(actor.Role, "review violation responses"); err != nil {
		return domain.ViolationResponse{}, err
	}
	if status != domain.ResponseApproved && status != domain.ResponseNeedsRevision {
		return domain.ViolationResponse{}, invalidInput("response status must be approved or needs_revision, got %q", status)
	}
	var out domain.ViolationResponse
	err := e.tx(ctx, func(tx *sql.Tx) error {
		v, r, err := e.responseOf(ctx, tx, objectID, violationID, responseID)
		if err != nil {
			return err
		}
		now := e.stamp()
		r.Status = status
		if strings.TrimSpace(comment) != "" {
			r.ControllerComment = comment
		}
		r.UpdatedAt = now
		if err := e.Repo.SaveResponse(ctx, tx, r); err != nil {
			return err
		}
		if status == domain.ResponseApproved {
			v.Status = domain.ViolationFixed
			v.UpdatedAt = now
			if err := e.Repo.SaveViolation(ctx, tx, v); err != nil {
				return err
			}
		}
		out = r
		return e.Events.Append(ctx, tx, events.ViolationResponseStatusChange, objectID, "violation_response", r.ID, actor.ID, events.EventPayload{
			"violation_id": v.ID, "status": status, "violation_status": v.Status,
		})
	})
	if err != nil {
		return domain.ViolationResponse{}, err
	}
	return out, nil
}

// ListViolations returns an object's violations newest first.
func (e Engine) ListViolations(ctx context.Context, objectID string) ([]domain.Violation, error) {
	j, err := e.Journal(ctx, objectID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListViolations(ctx, j.ID)
}

// ListResponses returns a violation's responses newest first.
func (e Engine) ListResponses(ctx context.Context, objectID, violationID string) ([]domain.ViolationResponse, error) {
	if _, err := e.violationOf(ctx, nil, objectID, violationID); err != nil {
		return nil, err
	}
	return e.Repo.ListResponses(ctx, violationID)
}
