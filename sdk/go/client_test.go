package oversightsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oversight/internal/config"
	"oversight/internal/db"
	"oversight/internal/domain"
	"oversight/internal/engine"
	"oversight/internal/files"
	"oversight/internal/migrate"
	"oversight/internal/server"
	oversightsdk "oversight/sdk/go"
)

const secret = "sdk-secret"

type fixture struct {
	url     string
	clients map[domain.Role]*oversightsdk.Client
	users   map[domain.Role]string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	workspace := t.TempDir()
	_, err := db.EnsureWorkspace(workspace)
	require.NoError(t, err)
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default(), files.Local{Dir: filepath.Join(workspace, "uploads")})
	t.Cleanup(e.WaitCleanup)

	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0", Auth: server.AuthConfig{JWTSecret: secret}})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	f := fixture{url: ts.URL, clients: map[domain.Role]*oversightsdk.Client{}, users: map[domain.Role]string{}}
	ctx := context.Background()
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleControl, domain.RoleContractor, domain.RoleInspector} {
		u, err := e.CreateUser(ctx, "setup", engine.UserCreateOptions{ID: "u-" + string(role), Login: string(role), Role: role})
		require.NoError(t, err)
		c := oversightsdk.New(ts.URL)
		if role == domain.RoleContractor {
			_, plain, err := e.CreateAPIKey(ctx, u.ID, "sdk")
			require.NoError(t, err)
			c.APIKey = plain
		} else {
			c.BearerToken, err = server.IssueToken(secret, u.ID, u.Role, time.Hour)
			require.NoError(t, err)
		}
		f.clients[role] = c
		f.users[role] = u.ID
	}
	return f
}

var square = []oversightsdk.Point{
	{Lat: 55.750, Lng: 37.610},
	{Lat: 55.750, Lng: 37.612},
	{Lat: 55.752, Lng: 37.612},
	{Lat: 55.752, Lng: 37.610},
}

func TestClientWalksObjectToActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, control, inspector := f.clients[domain.RoleAdmin], f.clients[domain.RoleControl], f.clients[domain.RoleInspector]

	o, err := admin.CreateObject(ctx, oversightsdk.ObjectInput{Name: "Park", Polygon: square})
	require.NoError(t, err)
	assert.Equal(t, "planned", o.Status)

	o, err = admin.Activate(ctx, o.ID, f.users[domain.RoleContractor], f.users[domain.RoleControl])
	require.NoError(t, err)
	assert.Equal(t, "assigned", o.Status)

	o, err = control.UploadDocument(ctx, o.ID, "act.pdf", "opening_act", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "pending_activation", o.Status)
	require.Len(t, o.Documents, 1)

	o, err = inspector.DecideOpeningAct(ctx, o.ID, o.Documents[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, "active", o.Status)
	assert.Equal(t, f.users[domain.RoleInspector], o.InspectorUserID)

	listed, err := f.clients[domain.RoleContractor].ListObjects(ctx, "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, o.ID, listed[0].ID)

	page, err := admin.EventsPage(ctx, o.ID, 1, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.NotEmpty(t, page.NextCursor)
}

func TestClientViolationRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, inspector, contractor := f.clients[domain.RoleAdmin], f.clients[domain.RoleInspector], f.clients[domain.RoleContractor]

	o, err := admin.CreateObject(ctx, oversightsdk.ObjectInput{Name: "Yard", Polygon: square})
	require.NoError(t, err)

	check, err := inspector.CheckGeofence(ctx, o.ID, 55.751, 37.611, 5)
	require.NoError(t, err)
	assert.True(t, check.Inside)
	far, err := inspector.CheckGeofence(ctx, o.ID, 55.80, 37.70, 5)
	require.NoError(t, err)
	assert.False(t, far.Inside)

	v, err := inspector.RaiseViolation(ctx, o.ID, oversightsdk.ViolationInput{
		Name: "No fence", Fixability: "fixable", Type: "simple", InspectorLocationVerified: check.Inside,
	})
	require.NoError(t, err)
	assert.Equal(t, "open", v.Status)
	assert.True(t, v.Verified)

	r, err := contractor.CreateResponse(ctx, o.ID, v.ID, "fence installed")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_approval", r.Status)

	r, err = inspector.SetResponseStatus(ctx, o.ID, v.ID, r.ID, "needs_revision", "photo missing")
	require.NoError(t, err)
	assert.Equal(t, "needs_revision", r.Status)
	assert.Equal(t, "photo missing", r.ControllerComment)

	items, err := admin.ListViolations(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.clients[domain.RoleContractor].CreateObject(ctx, oversightsdk.ObjectInput{Name: "Nope", Polygon: square})
	var apiErr *oversightsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)

	_, err = f.clients[domain.RoleAdmin].GetObject(ctx, "missing")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	anon := oversightsdk.New(f.url)
	_, err = anon.ListObjects(ctx, "")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
