package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"oversight/internal/config"
	"oversight/internal/db"
	"oversight/internal/domain"
	"oversight/internal/engine"
	"oversight/internal/files"
	"oversight/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	tokens map[domain.Role]string
	users  map[domain.Role]string
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) as(role domain.Role) map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.tokens[role]}
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), files.Local{Dir: filepath.Join(workspace, "uploads")})
	srv := &testServer{Engine: e, tokens: map[domain.Role]string{}, users: map[domain.Role]string{}}
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleControl, domain.RoleContractor, domain.RoleInspector} {
		u, err := e.CreateUser(context.Background(), "setup", engine.UserCreateOptions{ID: string(role) + "-1", Login: string(role), Role: role})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		token, err := IssueToken(testSecret, u.ID, u.Role, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		srv.tokens[role] = token
		srv.users[role] = u.ID
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	httpSrv := &http.Server{Handler: handler}
	go httpSrv.Serve(ln)
	srv.URL = "http://" + ln.Addr().String()
	srv.client = &http.Client{}
	srv.close = func() {
		httpSrv.Shutdown(context.Background())
		ln.Close()
		e.WaitCleanup()
		conn.Close()
	}
	return srv, func() { srv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(t, client, req)
}

func doUpload(t *testing.T, client *http.Client, target, name, docType string, data []byte, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	q := url.Values{"name": {name}}
	if docType != "" {
		q.Set("type", docType)
	}
	req, err := http.NewRequest(http.MethodPost, target+"?"+q.Encode(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(t, client, req)
}

func send(t *testing.T, client *http.Client, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("expected status %d, got %d: %s", want, res.StatusCode, string(data))
	}
}

func expectErrorCode(t *testing.T, data []byte, code string) {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	if env.Error.Code != code {
		t.Fatalf("expected error code %s, got %s (%s)", code, env.Error.Code, env.Error.Message)
	}
}

var squareBody = []map[string]float64{
	{"lat": 55.750, "lng": 37.610},
	{"lat": 55.750, "lng": 37.612},
	{"lat": 55.752, "lng": 37.612},
	{"lat": 55.752, "lng": 37.610},
}

func createObject(t *testing.T, srv *testServer) ObjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/objects", map[string]any{
		"name":    "Square on Mira ave.",
		"address": "Mira 10",
		"polygon": squareBody,
		"schedule": map[string]any{
			"start_date": "2024-05-01",
			"end_date":   "2024-09-30",
			"work_items": []map[string]any{
				{"id": "paving", "name": "Paving", "unit": "m2", "amount": 500, "start_date": "2024-05-01", "end_date": "2024-06-30"},
			},
		},
	}, srv.as(domain.RoleAdmin))
	expectStatus(t, res, data, http.StatusCreated)
	var o ObjectResponse
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	return o
}

func activeObject(t *testing.T, srv *testServer) ObjectResponse {
	t.Helper()
	o := createObject(t, srv)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/objects/"+o.ID+"/activate", map[string]any{
		"contractor_id":   srv.users[domain.RoleContractor],
		"control_user_id": srv.users[domain.RoleControl],
	}, srv.as(domain.RoleAdmin))
	expectStatus(t, res, data, http.StatusOK)
	res, data = doUpload(t, srv.Client(), srv.URL+"/v0/objects/"+o.ID+"/documents", "act.pdf", domain.DocumentOpeningAct, []byte("%PDF"), srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusOK)
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/objects/"+o.ID+"/documents/"+o.Documents[0].ID+"/approval",
		map[string]any{"approved": true}, srv.as(domain.RoleInspector))
	expectStatus(t, res, data, http.StatusOK)
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	return o
}

func TestHealthIsOpenAndAPIRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/objects", nil, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)
	expectErrorCode(t, data, "unauthorized")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/objects", nil, map[string]string{"Authorization": "Bearer nope"})
	expectStatus(t, res, data, http.StatusUnauthorized)
	expectErrorCode(t, data, "invalid_credentials")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, srv.as(domain.RoleInspector))
	expectStatus(t, res, data, http.StatusOK)
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.Role != string(domain.RoleInspector) || me.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestObjectLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	o := activeObject(t, srv)
	if o.Status != domain.ObjectActive {
		t.Fatalf("expected active, got %s", o.Status)
	}
	if o.InspectorUserID != srv.users[domain.RoleInspector] || o.InspectorName != "inspector" {
		t.Fatalf("expected inspector with display name, got %s/%s", o.InspectorUserID, o.InspectorName)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/objects/"+o.ID+"/work-items/paving/status",
		map[string]any{"status": "severe_violation"}, srv.as(domain.RoleInspector))
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/objects/"+o.ID+"/work-items/paving/status",
		map[string]any{"status": "severe_violation_fixed"}, srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/objects/"+o.ID+"/work-items/paving/status",
		map[string]any{"status": "accepted"}, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusOK)
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if o.Status != domain.ObjectActive || o.Schedule.WorkItems[0].Status != domain.WorkInProgress {
		t.Fatalf("expected active/in_progress, got %s/%s", o.Status, o.Schedule.WorkItems[0].Status)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/objects/"+o.ID+"/schedule",
		map[string]any{"end_date": "2024-10-31"}, srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/objects/"+o.ID+"/schedule/approval",
		map[string]any{"approved": true}, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusOK)
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if o.Schedule.EndDate != "2024-10-31" || o.Schedule.Status != domain.WorkNotStarted {
		t.Fatalf("unexpected schedule after approval: %+v", o.Schedule.Plan)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?object_id="+o.ID+"&limit=2", nil, srv.as(domain.RoleAdmin))
	expectStatus(t, res, data, http.StatusOK)
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" || page.Items[0].Type != "schedule.resolved" {
		t.Fatalf("unexpected events page: %+v", page)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/objects", map[string]any{
		"name": "x", "polygon": squareBody,
	}, srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusForbidden)
	expectErrorCode(t, data, "forbidden")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/objects/missing", nil, srv.as(domain.RoleAdmin))
	expectStatus(t, res, data, http.StatusNotFound)
	expectErrorCode(t, data, "not_found")

	o := activeObject(t, srv)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/objects/"+o.ID+"/documents/"+o.Documents[0].ID+"/approval",
		map[string]any{"approved": true}, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusConflict)
	expectErrorCode(t, data, "invalid_state")

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/objects/"+o.ID+"/work-items/paving/status",
		map[string]any{"status": "accepted"}, srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/objects/"+o.ID+"/schedule",
		map[string]any{"start_date": "2025-01-01"}, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusBadRequest)
	expectErrorCode(t, data, "bad_request")
}

func TestViolationRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	o := activeObject(t, srv)
	base := srv.URL + "/v0/objects/" + o.ID + "/violations"

	res, data := doJSON(t, srv.Client(), http.MethodPost, base, map[string]any{
		"fixability":        "fixable",
		"type":              "simple",
		"name":              "Debris on sidewalk",
		"fix_deadline_days": 2,
		"location":          map[string]any{"lat": 55.751, "lng": 37.611, "accuracy": 12},
	}, srv.as(domain.RoleInspector))
	expectStatus(t, res, data, http.StatusCreated)
	var v domain.Violation
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal violation: %v", err)
	}

	res, data = doUpload(t, srv.Client(), base+"/"+v.ID+"/documents", "photo.jpg", "image/jpeg", []byte("jpg"), srv.as(domain.RoleInspector))
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/"+v.ID+"/responses", map[string]any{"description": "cleaned"}, srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusCreated)
	var r domain.ViolationResponse
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	res, data = doUpload(t, srv.Client(), base+"/"+v.ID+"/responses/"+r.ID+"/documents", "after.jpg", "", []byte("jpg"), srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.Client(), http.MethodPut, base+"/"+v.ID+"/responses/"+r.ID+"/status",
		map[string]any{"status": "approved"}, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.Client(), http.MethodGet, base+"/"+v.ID, nil, srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusOK)
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal violation: %v", err)
	}
	if v.Status != domain.ViolationFixed || len(v.Responses) != 1 || len(v.Documents) != 1 {
		t.Fatalf("unexpected violation: status %s, %d responses", v.Status, len(v.Responses))
	}

	other := createObject(t, srv)
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/objects/"+other.ID+"/violations/"+v.ID, nil, srv.as(domain.RoleAdmin))
	expectStatus(t, res, data, http.StatusNotFound)
}

func TestDeliveryNoteAndLabSampleRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	o := activeObject(t, srv)
	notes := srv.URL + "/v0/objects/" + o.ID + "/work-items/paving/delivery-notes"

	res, data := doJSON(t, srv.Client(), http.MethodPost, notes, map[string]any{"description": "asphalt"}, srv.as(domain.RoleInspector))
	expectStatus(t, res, data, http.StatusForbidden)
	res, data = doJSON(t, srv.Client(), http.MethodPost, notes, map[string]any{"description": "asphalt"}, srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusCreated)
	var n domain.DeliveryNote
	if err := json.Unmarshal(data, &n); err != nil {
		t.Fatalf("unmarshal delivery note: %v", err)
	}
	res, data = doUpload(t, srv.Client(), notes+"/"+n.ID+"/documents", "ttn.pdf", "", []byte("pdf"), srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.Client(), http.MethodGet, notes, nil, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusOK)
	var list struct {
		Items []domain.DeliveryNote `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal delivery notes: %v", err)
	}
	if len(list.Items) != 1 || len(list.Items[0].Documents) != 1 || list.Items[0].Documents[0].Status != domain.DocumentApproved {
		t.Fatalf("unexpected delivery notes: %+v", list.Items)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/objects/"+o.ID+"/work-items/missing/delivery-notes", nil, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusNotFound)

	samples := srv.URL + "/v0/objects/" + o.ID + "/lab-samples"
	res, data = doJSON(t, srv.Client(), http.MethodPost, samples, map[string]any{"material_name": "Concrete", "description": "core"}, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusForbidden)
	res, data = doJSON(t, srv.Client(), http.MethodPost, samples, map[string]any{"material_name": "", "description": "core"}, srv.as(domain.RoleInspector))
	expectStatus(t, res, data, http.StatusBadRequest)
	res, data = doJSON(t, srv.Client(), http.MethodPost, samples, map[string]any{"material_name": "Concrete", "description": "core"}, srv.as(domain.RoleInspector))
	expectStatus(t, res, data, http.StatusCreated)
	var s domain.LabSample
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal lab sample: %v", err)
	}
	if s.Status != domain.SamplePending {
		t.Fatalf("expected pending sample, got %s", s.Status)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPut, samples+"/"+s.ID+"/status", map[string]any{"status": "completed"}, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, srv.Client(), http.MethodPut, samples+"/"+s.ID+"/status", map[string]any{"status": "in_progress"}, srv.as(domain.RoleControl))
	expectStatus(t, res, data, http.StatusConflict)
	expectErrorCode(t, data, "invalid_state")

	res, data = doJSON(t, srv.Client(), http.MethodGet, samples+"/"+s.ID, nil, srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusOK)
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal lab sample: %v", err)
	}
	if s.Status != domain.SampleCompleted {
		t.Fatalf("expected completed sample, got %s", s.Status)
	}
}

func TestGeofenceCheck(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	o := createObject(t, srv)

	check := func(lat, lng, acc float64) engine.GeofenceResult {
		t.Helper()
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/objects/"+o.ID+"/geofence/check",
			map[string]any{"lat": lat, "lng": lng, "accuracy": acc}, srv.as(domain.RoleInspector))
		expectStatus(t, res, data, http.StatusOK)
		var out engine.GeofenceResult
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal geofence: %v", err)
		}
		return out
	}
	if got := check(55.750, 37.610, 0); !got.Inside || got.DistanceMeters != 0 {
		t.Fatalf("vertex should be inside: %+v", got)
	}
	if got := check(55.850, 37.610, 5); got.Inside {
		t.Fatalf("11 km away should be outside: %+v", got)
	}
}

func TestAPIKeyTakesRoleFromDirectory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	o := activeObject(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/users/"+srv.users[domain.RoleContractor]+"/api-keys",
		map[string]any{"name": "ci"}, srv.as(domain.RoleContractor))
	expectStatus(t, res, data, http.StatusCreated)
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	headers := map[string]string{"X-Api-Key": key.Key}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/objects", nil, headers)
	expectStatus(t, res, data, http.StatusOK)
	var page paginatedObjects
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal objects: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != o.ID {
		t.Fatalf("contractor should see exactly its object, got %d", len(page.Items))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/users/"+srv.users[domain.RoleControl]+"/api-keys",
		map[string]any{}, headers)
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/users",
		map[string]any{"login": "new-inspector", "role": "inspector"}, headers)
	expectStatus(t, res, data, http.StatusForbidden)
}

func TestWebhookDispatchesNewEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Get("X-Oversight-Secret"))
		mu.Unlock()
	}))
	defer hook.Close()

	e := srv.Engine
	cfg := *e.Config
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"object.created"}, Secret: "s3cret"}}
	e.Config = &cfg
	d := newWebhookDispatcher(e, nil)
	ctx := context.Background()
	d.dispatchAll(ctx) // pins the cursor before new events

	createObject(t, srv)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Type != "object.created" || headers[0] != "s3cret" {
		t.Fatalf("expected one object.created delivery, got %+v", received)
	}
	if received[0].ObjectID == "" {
		t.Fatalf("expected object id on delivery")
	}
}
