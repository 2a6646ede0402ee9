package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the workflow engine.
const (
	ObjectCreated                 = "object.created"
	ObjectControlAssigned         = "object.control.assigned"
	ObjectStatusChanged           = "object.status.changed"
	ObjectDocumentAttached        = "object.document.attached"
	OpeningActResolved            = "object.opening_act.resolved"
	ScheduleProposed              = "schedule.proposed"
	ScheduleResolved              = "schedule.resolved"
	WorkItemStatusChanged         = "work_item.status.changed"
	JournalArchived               = "journal.archived"
	ViolationRaised               = "violation.raised"
	ViolationDocumentAttached     = "violation.document.attached"
	ViolationResponseCreated      = "violation.response.created"
	ViolationResponseDocument     = "violation.response.document.attached"
	ViolationResponseStatusChange = "violation.response.status.changed"
	DeliveryNoteCreated           = "delivery_note.created"
	DeliveryNoteDocument          = "delivery_note.document.attached"
	LabSampleCreated              = "lab_sample.created"
	LabSampleStatusChanged        = "lab_sample.status.changed"
	UserCreated                   = "user.created"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records one event inside tx so it commits with the state change.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, objectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,object_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(objectID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
