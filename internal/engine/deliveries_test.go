package engine_test

import (
	"errors"
	"testing"

	"oversight/internal/domain"
	"oversight/internal/engine"
	"oversight/internal/repo"
)

func TestDeliveryNotesPerWorkItem(t *testing.T) {
	env := newTestEnv(t)
	o := env.activeObject(t)

	if _, err := env.Engine.CreateDeliveryNote(env.Ctx, env.Inspector, o.ID, "paving", "asphalt"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("inspector cannot file delivery notes, got %v", err)
	}
	if _, err := env.Engine.CreateDeliveryNote(env.Ctx, env.Contractor, o.ID, "drainage", "pipes"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown work item should be not found, got %v", err)
	}
	if _, err := env.Engine.CreateDeliveryNote(env.Ctx, env.Contractor, "missing", "paving", "asphalt"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown object should be not found, got %v", err)
	}

	first, err := env.Engine.CreateDeliveryNote(env.Ctx, env.Contractor, o.ID, "paving", "asphalt batch 1")
	if err != nil {
		t.Fatalf("create delivery note: %v", err)
	}
	second, err := env.Engine.CreateDeliveryNote(env.Ctx, env.Control, o.ID, "paving", "asphalt batch 2")
	if err != nil {
		t.Fatalf("create second delivery note: %v", err)
	}
	if _, err := env.Engine.CreateDeliveryNote(env.Ctx, env.Contractor, o.ID, "lighting", "poles"); err != nil {
		t.Fatalf("create lighting delivery note: %v", err)
	}

	notes, err := env.Engine.ListDeliveryNotes(env.Ctx, o.ID, "paving")
	if err != nil {
		t.Fatalf("list delivery notes: %v", err)
	}
	if len(notes) != 2 || notes[0].ID != second.ID || notes[1].ID != first.ID {
		t.Fatalf("expected paving notes newest first, got %+v", notes)
	}

	n, err := env.Engine.AttachDeliveryNoteDocument(env.Ctx, env.Contractor, o.ID, "paving", first.ID, engine.DocumentUpload{Name: "ttn.pdf", Data: []byte("ttn")})
	if err != nil {
		t.Fatalf("attach delivery document: %v", err)
	}
	if len(n.Documents) != 1 || n.Documents[0].Status != domain.DocumentApproved {
		t.Fatalf("expected one approved document, got %+v", n.Documents)
	}
	got, err := env.Engine.GetDeliveryNote(env.Ctx, o.ID, "paving", first.ID)
	if err != nil || len(got.Documents) != 1 || got.CreatedBy != env.Contractor.ID {
		t.Fatalf("get delivery note: %+v %v", got, err)
	}

	if _, err := env.Engine.GetDeliveryNote(env.Ctx, o.ID, "lighting", first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("note under another work item should be not found, got %v", err)
	}
	if _, err := env.Engine.AttachDeliveryNoteDocument(env.Ctx, env.Contractor, o.ID, "lighting", first.ID, engine.DocumentUpload{Name: "x.pdf", Data: []byte("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("attach under another work item should be not found, got %v", err)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{ObjectID: o.ID, Type: "delivery_note.created", Limit: 10})
	if err != nil || len(evts) != 3 {
		t.Fatalf("expected 3 delivery_note.created events, got %d (%v)", len(evts), err)
	}
}

func TestLabSamples(t *testing.T) {
	env := newTestEnv(t)
	o := env.createObject(t)

	if _, err := env.Engine.CreateLabSample(env.Ctx, env.Control, o.ID, "Concrete B25", "slab core"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("only inspectors request samples, got %v", err)
	}
	if _, err := env.Engine.CreateLabSample(env.Ctx, env.Inspector, o.ID, " ", "slab core"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("material name is required, got %v", err)
	}
	if _, err := env.Engine.CreateLabSample(env.Ctx, env.Inspector, o.ID, "Concrete B25", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("description is required, got %v", err)
	}

	concrete, err := env.Engine.CreateLabSample(env.Ctx, env.Inspector, o.ID, "Concrete B25", "slab core")
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if concrete.Status != domain.SamplePending {
		t.Fatalf("new sample should be pending, got %s", concrete.Status)
	}
	sand, err := env.Engine.CreateLabSample(env.Ctx, env.Inspector, o.ID, "Sand", "base layer")
	if err != nil {
		t.Fatalf("create second sample: %v", err)
	}
	samples, err := env.Engine.ListLabSamples(env.Ctx, o.ID)
	if err != nil || len(samples) != 2 || samples[0].ID != sand.ID {
		t.Fatalf("expected samples newest first, got %+v (%v)", samples, err)
	}

	if _, err := env.Engine.SetLabSampleStatus(env.Ctx, env.Contractor, o.ID, concrete.ID, domain.SampleInProgress); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("contractor cannot update samples, got %v", err)
	}
	s, err := env.Engine.SetLabSampleStatus(env.Ctx, env.Control, o.ID, concrete.ID, domain.SampleInProgress)
	if err != nil || s.Status != domain.SampleInProgress {
		t.Fatalf("advance sample: %+v %v", s, err)
	}
	if _, err := env.Engine.SetLabSampleStatus(env.Ctx, env.Inspector, o.ID, concrete.ID, domain.SamplePending); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("samples never move back, got %v", err)
	}
	if _, err := env.Engine.SetLabSampleStatus(env.Ctx, env.Inspector, o.ID, concrete.ID, "lost"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown status should be invalid input, got %v", err)
	}
	s, err = env.Engine.GetLabSample(env.Ctx, o.ID, concrete.ID)
	if err != nil || s.Status != domain.SampleInProgress {
		t.Fatalf("get sample: %+v %v", s, err)
	}

	other := env.createObject(t)
	if _, err := env.Engine.GetLabSample(env.Ctx, other.ID, concrete.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("sample of another object should be not found, got %v", err)
	}
	if _, err := env.Engine.ListLabSamples(env.Ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown object should be not found, got %v", err)
	}
}
