package server

import (
	"encoding/json"

	"oversight/internal/domain"
)

// Request payloads

type PointRequest struct {
	Lat float64 `json:"lat" minimum:"-90" maximum:"90"`
	Lng float64 `json:"lng" minimum:"-180" maximum:"180"`
}

type WorkItemRequest struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	StartDate   string  `json:"start_date,omitempty"`
	EndDate     string  `json:"end_date,omitempty"`
}

type ScheduleRequest struct {
	StartDate string            `json:"start_date,omitempty"`
	EndDate   string            `json:"end_date,omitempty"`
	WorkItems []WorkItemRequest `json:"work_items,omitempty"`
}

type CreateObjectRequest struct {
	ID          string           `json:"id,omitempty"`
	Name        string           `json:"name"`
	Address     string           `json:"address,omitempty"`
	Description string           `json:"description,omitempty"`
	Polygon     []PointRequest   `json:"polygon" minItems:"3"`
	Schedule    *ScheduleRequest `json:"schedule,omitempty"`
}

type AssignControlRequest struct {
	ControlUserID string `json:"control_user_id"`
}

type ActivateRequest struct {
	ContractorID  string `json:"contractor_id"`
	ControlUserID string `json:"control_user_id"`
}

type DecisionRequest struct {
	Approved bool `json:"approved"`
}

type DateChangeRequest struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type WorkStatusRequest struct {
	Status string `json:"status" enum:"not_started,in_progress,suspended,violation,severe_violation,violation_fixed,severe_violation_fixed,completed,accepted,pending_reschedule_approve"`
}

type LocationRequest struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy" minimum:"0"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type CreateViolationRequest struct {
	Category                  string           `json:"category,omitempty"`
	Fixability                string           `json:"fixability" enum:"fixable,non_fixable"`
	Type                      string           `json:"type" enum:"simple,severe"`
	Name                      string           `json:"name"`
	FixDeadlineDays           *int             `json:"fix_deadline_days,omitempty" minimum:"0"`
	Location                  *LocationRequest `json:"location,omitempty"`
	InspectorLocationVerified bool             `json:"inspector_location_verified,omitempty"`
}

type CreateResponseRequest struct {
	Description string `json:"description,omitempty"`
}

type ResponseStatusRequest struct {
	Status  string `json:"status" enum:"approved,needs_revision"`
	Comment string `json:"comment,omitempty"`
}

type CreateDeliveryNoteRequest struct {
	Description string `json:"description,omitempty" maxLength:"2000"`
}

type CreateLabSampleRequest struct {
	MaterialName string `json:"material_name" minLength:"1"`
	Description  string `json:"description" minLength:"1"`
}

type LabSampleStatusRequest struct {
	Status string `json:"status" enum:"pending,in_progress,completed"`
}

type CreateUserRequest struct {
	ID           string `json:"id,omitempty"`
	Login        string `json:"login"`
	DisplayName  string `json:"display_name,omitempty"`
	Role         string `json:"role" enum:"admin,control,contractor,inspector"`
	Organization string `json:"organization,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type GeofenceCheckRequest struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy" minimum:"0"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Response payloads

type ObjectResponse struct {
	domain.ConstructionObject
	CreatedByName  string `json:"createdByName,omitempty"`
	ControlName    string `json:"controlName,omitempty"`
	ContractorName string `json:"contractorName,omitempty"`
	InspectorName  string `json:"inspectorName,omitempty"`
}

type paginatedObjects struct {
	Items []ObjectResponse `json:"items"`
}

type paginatedViolations struct {
	Items []domain.Violation `json:"items"`
}

type paginatedResponses struct {
	Items []domain.ViolationResponse `json:"items"`
}

type paginatedDeliveryNotes struct {
	Items []domain.DeliveryNote `json:"items"`
}

type paginatedLabSamples struct {
	Items []domain.LabSample `json:"items"`
}

type paginatedUsers struct {
	Items []domain.User `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ObjectID   string         `json:"object_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MeResponse struct {
	ActorID     string `json:"actor_id"`
	Role        string `json:"role"`
	Source      string `json:"source"`
	DisplayName string `json:"display_name,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Mappers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ObjectID:   e.ObjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
