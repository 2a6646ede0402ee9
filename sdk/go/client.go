package oversightsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Oversight HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Document struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
}

type Plan struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Status    string `json:"status"`
	Pending   *struct {
		StartDate string `json:"updatedStartDate"`
		EndDate   string `json:"updatedEndDate"`
	} `json:"pending,omitempty"`
}

type WorkItem struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Unit   string  `json:"unit"`
	Amount float64 `json:"amount"`
	Plan
}

type Schedule struct {
	Plan
	WorkItems []WorkItem `json:"workItems"`
}

// Object represents the API construction object model (partial).
type Object struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Address          string     `json:"address"`
	Status           string     `json:"status"`
	Polygon          []Point    `json:"polygon"`
	Schedule         *Schedule  `json:"schedule,omitempty"`
	Documents        []Document `json:"documents"`
	ControlUserID    string     `json:"controlUserId,omitempty"`
	ContractorUserID string     `json:"contractorUserId,omitempty"`
	InspectorUserID  string     `json:"inspectorUserId,omitempty"`
	ControlName      string     `json:"controlName,omitempty"`
	ContractorName   string     `json:"contractorName,omitempty"`
}

// ObjectInput is the create-object payload.
type ObjectInput struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Address     string  `json:"address,omitempty"`
	Description string  `json:"description,omitempty"`
	Polygon     []Point `json:"polygon"`
	Schedule    *struct {
		StartDate string `json:"start_date,omitempty"`
		EndDate   string `json:"end_date,omitempty"`
	} `json:"schedule,omitempty"`
}

type Violation struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Fixability  string     `json:"fixability"`
	Status      string     `json:"status"`
	FixDeadline string     `json:"fixDeadline"`
	Documents   []Document `json:"documents"`
	Verified    bool       `json:"inspectorLocationVerified"`
}

// ViolationInput is the raise-violation payload.
type ViolationInput struct {
	Category        string `json:"category,omitempty"`
	Fixability      string `json:"fixability"`
	Type            string `json:"type"`
	Name            string `json:"name"`
	FixDeadlineDays *int   `json:"fix_deadline_days,omitempty"`
	Location        *struct {
		Lat      float64 `json:"lat"`
		Lng      float64 `json:"lng"`
		Accuracy float64 `json:"accuracy"`
	} `json:"location,omitempty"`
	InspectorLocationVerified bool `json:"inspector_location_verified,omitempty"`
}

type Response struct {
	ID                string     `json:"id"`
	ViolationID       string     `json:"violationId"`
	Description       string     `json:"description,omitempty"`
	Status            string     `json:"status"`
	ControllerComment string     `json:"controllerComment,omitempty"`
	Documents         []Document `json:"documents"`
}

// GeofenceResult is the outcome of a position check.
type GeofenceResult struct {
	Inside         bool    `json:"inside"`
	Strategy       string  `json:"strategy"`
	BufferMeters   float64 `json:"buffer_meters"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ObjectID   string         `json:"object_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateObject creates a planned object.
func (c *Client) CreateObject(ctx context.Context, in ObjectInput) (Object, error) {
	var resp Object
	err := c.do(ctx, http.MethodPost, "objects", in, &resp)
	return resp, err
}

// GetObject fetches an object by id.
func (c *Client) GetObject(ctx context.Context, id string) (Object, error) {
	var resp Object
	err := c.do(ctx, http.MethodGet, objectPath(id), nil, &resp)
	return resp, err
}

// ListObjects returns the objects visible to the caller.
func (c *Client) ListObjects(ctx context.Context, status string) ([]Object, error) {
	var resp struct {
		Items []Object `json:"items"`
	}
	endpoint := "objects"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Activate appoints contractor and control.
func (c *Client) Activate(ctx context.Context, objectID, contractorID, controlUserID string) (Object, error) {
	body := map[string]any{
		"contractor_id":   contractorID,
		"control_user_id": controlUserID,
	}
	var resp Object
	err := c.do(ctx, http.MethodPost, objectPath(objectID, "activate"), body, &resp)
	return resp, err
}

// UploadDocument stores a file on the object. docType opening_act requests activation.
func (c *Client) UploadDocument(ctx context.Context, objectID, name, docType string, data []byte) (Object, error) {
	q := url.Values{"name": {name}}
	if docType != "" {
		q.Set("type", docType)
	}
	var resp Object
	err := c.upload(ctx, objectPath(objectID, "documents")+"?"+q.Encode(), data, &resp)
	return resp, err
}

// DecideOpeningAct approves or rejects an opening act.
func (c *Client) DecideOpeningAct(ctx context.Context, objectID, documentID string, approved bool) (Object, error) {
	var resp Object
	err := c.do(ctx, http.MethodPost, objectPath(objectID, "documents", documentID, "approval"), map[string]any{"approved": approved}, &resp)
	return resp, err
}

// ProposeSchedule changes or proposes object dates depending on the caller's role.
func (c *Client) ProposeSchedule(ctx context.Context, objectID, start, end string) (Object, error) {
	var resp Object
	err := c.do(ctx, http.MethodPut, objectPath(objectID, "schedule"), map[string]any{"start_date": start, "end_date": end}, &resp)
	return resp, err
}

// ResolveSchedule approves or rejects a pending object reschedule.
func (c *Client) ResolveSchedule(ctx context.Context, objectID string, approved bool) (Object, error) {
	var resp Object
	err := c.do(ctx, http.MethodPost, objectPath(objectID, "schedule", "approval"), map[string]any{"approved": approved}, &resp)
	return resp, err
}

// SetWorkItemStatus requests a work item status change.
func (c *Client) SetWorkItemStatus(ctx context.Context, objectID, workItemID, status string) (Object, error) {
	var resp Object
	err := c.do(ctx, http.MethodPut, objectPath(objectID, "work-items", workItemID, "status"), map[string]any{"status": status}, &resp)
	return resp, err
}

// RaiseViolation records a violation in the object's journal.
func (c *Client) RaiseViolation(ctx context.Context, objectID string, in ViolationInput) (Violation, error) {
	var resp Violation
	err := c.do(ctx, http.MethodPost, objectPath(objectID, "violations"), in, &resp)
	return resp, err
}

// ListViolations returns the object's violations newest first.
func (c *Client) ListViolations(ctx context.Context, objectID string) ([]Violation, error) {
	var resp struct {
		Items []Violation `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, objectPath(objectID, "violations"), nil, &resp)
	return resp.Items, err
}

// CreateResponse adds a contractor response to a violation.
func (c *Client) CreateResponse(ctx context.Context, objectID, violationID, description string) (Response, error) {
	var resp Response
	err := c.do(ctx, http.MethodPost, objectPath(objectID, "violations", violationID, "responses"), map[string]any{"description": description}, &resp)
	return resp, err
}

// SetResponseStatus approves a response or sends it back for revision.
func (c *Client) SetResponseStatus(ctx context.Context, objectID, violationID, responseID, status, comment string) (Response, error) {
	body := map[string]any{"status": status, "comment": comment}
	var resp Response
	err := c.do(ctx, http.MethodPut, objectPath(objectID, "violations", violationID, "responses", responseID, "status"), body, &resp)
	return resp, err
}

// CheckGeofence checks a position against the object's boundary.
func (c *Client) CheckGeofence(ctx context.Context, objectID string, lat, lng, accuracy float64) (GeofenceResult, error) {
	body := map[string]any{"lat": lat, "lng": lng, "accuracy": accuracy}
	var resp GeofenceResult
	err := c.do(ctx, http.MethodPost, objectPath(objectID, "geofence", "check"), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, "", limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, optionally for one object.
func (c *Client) EventsPage(ctx context.Context, objectID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if objectID != "" {
		q.Set("object_id", objectID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.send(ctx, method, endpoint, "application/json", &buf, out)
}

func (c *Client) upload(ctx context.Context, endpoint string, data []byte, out any) error {
	return c.send(ctx, http.MethodPost, endpoint, "application/octet-stream", bytes.NewReader(data), out)
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}

func objectPath(id string, rest ...string) string {
	parts := []string{"objects", url.PathEscape(id)}
	for _, r := range rest {
		parts = append(parts, url.PathEscape(r))
	}
	return strings.Join(parts, "/")
}
