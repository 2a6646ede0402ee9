package repo

import (
	"context"
	"database/sql"
	"errors"

	"oversight/internal/domain"
)

const deliveryNoteColumns = `id,object_id,work_item_id,COALESCE(description,''),documents_json,created_by,created_at,updated_at`

func scanDeliveryNote(row rowScanner) (domain.DeliveryNote, error) {
	var (
		n    domain.DeliveryNote
		docs string
	)
	err := row.Scan(&n.ID, &n.ObjectID, &n.WorkItemID, &n.Description, &docs, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.Documents, err = unmarshalDocuments(docs)
	return n, err
}

func (r Repo) InsertDeliveryNote(ctx context.Context, tx *sql.Tx, n domain.DeliveryNote) error {
	docs, err := documentsJSON(n.Documents)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO delivery_notes(id,object_id,work_item_id,description,documents_json,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`, n.ID, n.ObjectID, n.WorkItemID, nullable(n.Description), docs, n.CreatedBy, n.CreatedAt, n.UpdatedAt)
	return err
}

// SaveDeliveryNote writes back the note's documents; the rest of the entry is immutable.
func (r Repo) SaveDeliveryNote(ctx context.Context, tx *sql.Tx, n domain.DeliveryNote) error {
	docs, err := documentsJSON(n.Documents)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE delivery_notes SET documents_json=?, updated_at=? WHERE id=?`, docs, n.UpdatedAt, n.ID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) GetDeliveryNoteTx(ctx context.Context, tx *sql.Tx, id string) (domain.DeliveryNote, error) {
	return scanDeliveryNote(r.q(tx).QueryRowContext(ctx, `SELECT `+deliveryNoteColumns+` FROM delivery_notes WHERE id=?`, id))
}

// ListDeliveryNotes returns a work item's delivery notes newest first.
func (r Repo) ListDeliveryNotes(ctx context.Context, objectID, workItemID string) ([]domain.DeliveryNote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+deliveryNoteColumns+` FROM delivery_notes WHERE object_id=? AND work_item_id=?
ORDER BY created_at DESC, rowid DESC`, objectID, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DeliveryNote{}
	for rows.Next() {
		n, err := scanDeliveryNote(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

const labSampleColumns = `id,object_id,material_name,description,status,created_by,created_at,updated_at`

func scanLabSample(row rowScanner) (domain.LabSample, error) {
	var s domain.LabSample
	err := row.Scan(&s.ID, &s.ObjectID, &s.MaterialName, &s.Description, &s.Status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertLabSample(ctx context.Context, tx *sql.Tx, s domain.LabSample) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO lab_samples(id,object_id,material_name,description,status,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`, s.ID, s.ObjectID, s.MaterialName, s.Description, string(s.Status), s.CreatedBy, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) UpdateLabSampleStatus(ctx context.Context, tx *sql.Tx, id string, status domain.SampleStatus, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE lab_samples SET status=?, updated_at=? WHERE id=?`, string(status), updatedAt, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) GetLabSampleTx(ctx context.Context, tx *sql.Tx, id string) (domain.LabSample, error) {
	return scanLabSample(r.q(tx).QueryRowContext(ctx, `SELECT `+labSampleColumns+` FROM lab_samples WHERE id=?`, id))
}

// ListLabSamples returns an object's samples newest first.
func (r Repo) ListLabSamples(ctx context.Context, objectID string) ([]domain.LabSample, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+labSampleColumns+` FROM lab_samples WHERE object_id=? ORDER BY created_at DESC, rowid DESC`, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.LabSample{}
	for rows.Next() {
		s, err := scanLabSample(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
