package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"oversight/internal/domain"
	"oversight/internal/engine/auth"
	"oversight/internal/events"
)

// deliveryNoteOf loads a note and checks that it belongs to the object's work item.
func (e Engine) deliveryNoteOf(ctx context.Context, tx *sql.Tx, objectID, workItemID, noteID string) (domain.DeliveryNote, error) {
	n, err := e.Repo.GetDeliveryNoteTx(ctx, tx, noteID)
	if err != nil {
		return domain.DeliveryNote{}, wrapNotFound(err, "delivery note", noteID)
	}
	if n.ObjectID != objectID || n.WorkItemID != workItemID {
		return domain.DeliveryNote{}, notFound("delivery note", noteID+" of work item "+workItemID)
	}
	return n, nil
}

func (e Engine) requireWorkItem(ctx context.Context, tx *sql.Tx, objectID, workItemID string) error {
	o, err := e.Repo.GetObjectTx(ctx, tx, objectID)
	if err != nil {
		return wrapNotFound(err, "object", objectID)
	}
	_, err = workItemOf(&o, workItemID)
	return err
}

// CreateDeliveryNote opens a delivery-note entry for a work item. Waybills
// and certificates are attached afterwards.
func (e Engine) CreateDeliveryNote(ctx context.Context, actor domain.Actor, objectID, workItemID, description string) (domain.DeliveryNote, error) {
	if err := auth.Require(actor.Role, "file delivery notes", domain.RoleContractor, domain.RoleControl); err != nil {
		return domain.DeliveryNote{}, err
	}
	now := e.stamp()
	n := domain.DeliveryNote{
		ID:          uuid.NewString(),
		ObjectID:    objectID,
		WorkItemID:  workItemID,
		Description: strings.TrimSpace(description),
		Documents:   []domain.Document{},
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.tx(ctx, func(tx *sql.Tx) error {
		if err := e.requireWorkItem(ctx, tx, objectID, workItemID); err != nil {
			return err
		}
		if err := e.Repo.InsertDeliveryNote(ctx, tx, n); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.DeliveryNoteCreated, objectID, "delivery_note", n.ID, actor.ID, events.EventPayload{
			"work_item_id": workItemID,
		})
	})
	if err != nil {
		return domain.DeliveryNote{}, err
	}
	return n, nil
}

func (e Engine) ListDeliveryNotes(ctx context.Context, objectID, workItemID string) ([]domain.DeliveryNote, error) {
	if err := e.requireWorkItem(ctx, nil, objectID, workItemID); err != nil {
		return nil, err
	}
	return e.Repo.ListDeliveryNotes(ctx, objectID, workItemID)
}

func (e Engine) GetDeliveryNote(ctx context.Context, objectID, workItemID, noteID string) (domain.DeliveryNote, error) {
	return e.deliveryNoteOf(ctx, nil, objectID, workItemID, noteID)
}

// AttachDeliveryNoteDocument stores a scanned waybill or certificate. Delivery
// documents need no review and are stored approved.
func (e Engine) AttachDeliveryNoteDocument(ctx context.Context, actor domain.Actor, objectID, workItemID, noteID string, up DocumentUpload) (domain.DeliveryNote, error) {
	if err := auth.Require(actor.Role, "attach delivery documents", domain.RoleContractor, domain.RoleControl); err != nil {
		return domain.DeliveryNote{}, err
	}
	if _, err := e.deliveryNoteOf(ctx, nil, objectID, workItemID, noteID); err != nil {
		return domain.DeliveryNote{}, err
	}
	doc, err := e.storeDocument(ctx, objectID, up)
	if err != nil {
		return domain.DeliveryNote{}, err
	}
	doc.Status = domain.DocumentApproved
	var out domain.DeliveryNote
	err = e.tx(ctx, func(tx *sql.Tx) error {
		n, err := e.deliveryNoteOf(ctx, tx, objectID, workItemID, noteID)
		if err != nil {
			return err
		}
		n.Documents = append(n.Documents, doc)
		n.UpdatedAt = e.stamp()
		if err := e.Repo.SaveDeliveryNote(ctx, tx, n); err != nil {
			return err
		}
		out = n
		return e.Events.Append(ctx, tx, events.DeliveryNoteDocument, objectID, "delivery_note", n.ID, actor.ID, events.EventPayload{
			"document_id": doc.ID, "name": doc.Name,
		})
	})
	if err != nil {
		e.discardFile(objectID, doc.Path)
		return domain.DeliveryNote{}, err
	}
	return out, nil
}

// CreateLabSample requests laboratory testing of a material. Samples start pending.
func (e Engine) CreateLabSample(ctx context.Context, actor domain.Actor, objectID, materialName, description string) (domain.LabSample, error) {
	if err := auth.Require(actor.Role, "request lab samples", domain.RoleInspector); err != nil {
		return domain.LabSample{}, err
	}
	materialName, description = strings.TrimSpace(materialName), strings.TrimSpace(description)
	if materialName == "" {
		return domain.LabSample{}, invalidInput("material name is required")
	}
	if description == "" {
		return domain.LabSample{}, invalidInput("sample description is required")
	}
	now := e.stamp()
	s := domain.LabSample{
		ID:           uuid.NewString(),
		ObjectID:     objectID,
		MaterialName: materialName,
		Description:  description,
		Status:       domain.SamplePending,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := e.tx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetObjectTx(ctx, tx, objectID); err != nil {
			return wrapNotFound(err, "object", objectID)
		}
		if err := e.Repo.InsertLabSample(ctx, tx, s); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.LabSampleCreated, objectID, "lab_sample", s.ID, actor.ID, events.EventPayload{
			"material_name": materialName,
		})
	})
	if err != nil {
		return domain.LabSample{}, err
	}
	return s, nil
}

func (e Engine) ListLabSamples(ctx context.Context, objectID string) ([]domain.LabSample, error) {
	if _, err := e.GetObject(ctx, objectID); err != nil {
		return nil, err
	}
	return e.Repo.ListLabSamples(ctx, objectID)
}

func (e Engine) labSampleOf(ctx context.Context, tx *sql.Tx, objectID, sampleID string) (domain.LabSample, error) {
	s, err := e.Repo.GetLabSampleTx(ctx, tx, sampleID)
	if err != nil {
		return domain.LabSample{}, wrapNotFound(err, "lab sample", sampleID)
	}
	if s.ObjectID != objectID {
		return domain.LabSample{}, notFound("lab sample", sampleID+" in object "+objectID)
	}
	return s, nil
}

func (e Engine) GetLabSample(ctx context.Context, objectID, sampleID string) (domain.LabSample, error) {
	return e.labSampleOf(ctx, nil, objectID, sampleID)
}

// SetLabSampleStatus advances a sample towards completed. Samples never move back.
func (e Engine) SetLabSampleStatus(ctx context.Context, actor domain.Actor, objectID, sampleID string, status domain.SampleStatus) (domain.LabSample, error) {
	if err := auth.RequireSupervision(actor.Role, "update lab samples"); err != nil {
		return domain.LabSample{}, err
	}
	if !status.Valid() {
		return domain.LabSample{}, invalidInput("invalid sample status %q", status)
	}
	var out domain.LabSample
	err := e.tx(ctx, func(tx *sql.Tx) error {
		s, err := e.labSampleOf(ctx, tx, objectID, sampleID)
		if err != nil {
			return err
		}
		if !status.Follows(s.Status) {
			return invalidState("lab sample %s cannot move from %s to %s", s.ID, s.Status, status)
		}
		from := s.Status
		s.Status = status
		s.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateLabSampleStatus(ctx, tx, s.ID, s.Status, s.UpdatedAt); err != nil {
			return err
		}
		out = s
		return e.Events.Append(ctx, tx, events.LabSampleStatusChanged, objectID, "lab_sample", s.ID, actor.ID, events.EventPayload{
			"from": from, "to": status,
		})
	})
	if err != nil {
		return domain.LabSample{}, err
	}
	return out, nil
}
