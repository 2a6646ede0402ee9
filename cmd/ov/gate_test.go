package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oversight/internal/config"
	"oversight/internal/db"
	"oversight/internal/domain"
	"oversight/internal/engine"
	"oversight/internal/files"
	"oversight/internal/geofence"
	"oversight/internal/migrate"
)

var site = []domain.Point{
	{Lat: 55.750, Lng: 37.610},
	{Lat: 55.750, Lng: 37.612},
	{Lat: 55.752, Lng: 37.612},
	{Lat: 55.752, Lng: 37.610},
}

var (
	onSite  = positionFlags{lat: 55.751, lng: 37.611, accuracy: 5, set: true}
	offSite = positionFlags{lat: 55.800, lng: 37.700, accuracy: 5, set: true}
)

type gateFixture struct {
	ctx        context.Context
	e          engine.Engine
	objectID   string
	control    domain.Actor
	contractor domain.Actor
	inspector  domain.Actor
}

func newGateFixture(t *testing.T) gateFixture {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default(), files.Local{Dir: filepath.Join(dir, "uploads")})
	t.Cleanup(e.WaitCleanup)

	f := gateFixture{ctx: context.Background(), e: e}
	actor := func(login string, role domain.Role) domain.Actor {
		u, err := e.CreateUser(f.ctx, "setup", engine.UserCreateOptions{ID: login + "-id", Login: login, Role: role})
		require.NoError(t, err)
		return domain.Actor{ID: u.ID, Role: u.Role}
	}
	admin := actor("admin", domain.RoleAdmin)
	f.control = actor("control", domain.RoleControl)
	f.contractor = actor("contractor", domain.RoleContractor)
	f.inspector = actor("inspector", domain.RoleInspector)

	o, err := e.CreateObject(f.ctx, admin, engine.ObjectCreateOptions{
		Name:    "Yard",
		Polygon: site,
		Schedule: &engine.ScheduleInput{
			StartDate: "2024-05-01",
			EndDate:   "2024-09-30",
			WorkItems: []engine.WorkItemInput{{ID: "paving", Name: "Paving", StartDate: "2024-05-01", EndDate: "2024-06-30"}},
		},
	})
	require.NoError(t, err)
	_, err = e.ActivateWithContractor(f.ctx, admin, o.ID, f.contractor.ID, f.control.ID)
	require.NoError(t, err)
	o, err = e.AttachObjectDocument(f.ctx, f.control, o.ID, engine.DocumentUpload{Name: "act.pdf", Type: domain.DocumentOpeningAct, Data: []byte("act")})
	require.NoError(t, err)
	_, err = e.ApproveOpeningAct(f.ctx, f.inspector, o.ID, o.Documents[0].ID, true)
	require.NoError(t, err)
	f.objectID = o.ID
	return f
}

func (f gateFixture) itemStatus(t *testing.T) domain.WorkStatus {
	t.Helper()
	o, err := f.e.GetObject(f.ctx, f.objectID)
	require.NoError(t, err)
	item, ok := o.Schedule.WorkItem("paving")
	require.True(t, ok)
	return item.Status
}

func TestRaiseViolationRequiresOnSitePosition(t *testing.T) {
	f := newGateFixture(t)
	in := engine.ViolationInput{Name: "No fence", Fixability: domain.Fixable, Type: domain.ViolationSimple}

	_, err := raiseViolation(f.ctx, f.e, f.inspector, f.objectID, in, offSite)
	assert.ErrorIs(t, err, geofence.ErrOutsideGeofence)
	_, err = raiseViolation(f.ctx, f.e, f.inspector, f.objectID, in, positionFlags{})
	assert.ErrorIs(t, err, geofence.ErrPositionUnavailable)

	items, err := f.e.ListViolations(f.ctx, f.objectID)
	require.NoError(t, err)
	assert.Empty(t, items, "rejected raises must not be recorded")

	v, err := raiseViolation(f.ctx, f.e, f.inspector, f.objectID, in, onSite)
	require.NoError(t, err)
	assert.True(t, v.InspectorLocationVerified)
	require.NotNil(t, v.Location)
	assert.Equal(t, 55.751, v.Location.Lat)
}

func TestContractorWorkStatusRequiresOnSitePosition(t *testing.T) {
	f := newGateFixture(t)

	_, err := setWorkStatus(f.ctx, f.e, f.contractor, f.objectID, "paving", domain.WorkInProgress, offSite)
	assert.ErrorIs(t, err, geofence.ErrOutsideGeofence)
	_, err = setWorkStatus(f.ctx, f.e, f.contractor, f.objectID, "paving", domain.WorkInProgress, positionFlags{})
	assert.ErrorIs(t, err, geofence.ErrPositionUnavailable)
	assert.Equal(t, domain.WorkNotStarted, f.itemStatus(t))

	_, err = setWorkStatus(f.ctx, f.e, f.contractor, f.objectID, "paving", domain.WorkInProgress, onSite)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkInProgress, f.itemStatus(t))
}

func TestSupervisionWorkStatusSkipsPositionGate(t *testing.T) {
	f := newGateFixture(t)

	_, err := setWorkStatus(f.ctx, f.e, f.control, f.objectID, "paving", domain.WorkInProgress, positionFlags{})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkInProgress, f.itemStatus(t))
}

func TestDeliveryNoteRequiresOnSitePosition(t *testing.T) {
	f := newGateFixture(t)

	_, err := createDeliveryNote(f.ctx, f.e, f.contractor, f.objectID, "paving", "asphalt", offSite)
	assert.ErrorIs(t, err, geofence.ErrOutsideGeofence)
	notes, err := f.e.ListDeliveryNotes(f.ctx, f.objectID, "paving")
	require.NoError(t, err)
	assert.Empty(t, notes)

	n, err := createDeliveryNote(f.ctx, f.e, f.contractor, f.objectID, "paving", "asphalt", onSite)
	require.NoError(t, err)
	assert.Equal(t, "paving", n.WorkItemID)
}
