package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"oversight/internal/domain"
)

func (r Repo) InsertJournal(ctx context.Context, tx *sql.Tx, j domain.Journal) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO journals(id,object_id,status,created_at,updated_at) VALUES (?,?,?,?,?)`,
		j.ID, j.ObjectID, string(j.Status), j.CreatedAt, j.UpdatedAt)
	return err
}

func (r Repo) UpdateJournalStatus(ctx context.Context, tx *sql.Tx, id string, status domain.JournalStatus, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE journals SET status=?, updated_at=? WHERE id=?`, string(status), updatedAt, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func scanJournal(row *sql.Row) (domain.Journal, error) {
	var j domain.Journal
	err := row.Scan(&j.ID, &j.ObjectID, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return j, ErrNotFound
	}
	return j, err
}

func (r Repo) GetJournalByObject(ctx context.Context, objectID string) (domain.Journal, error) {
	return scanJournal(r.DB.QueryRowContext(ctx, `SELECT id,object_id,status,created_at,updated_at FROM journals WHERE object_id=?`, objectID))
}

const violationColumns = `id,journal_id,category,fixability,type,name,fix_deadline,status,documents_json,COALESCE(location_json,''),
inspector_location_verified,created_at,updated_at`

func scanViolation(row rowScanner) (domain.Violation, error) {
	var (
		v              domain.Violation
		docs, location string
	)
	err := row.Scan(&v.ID, &v.JournalID, &v.Category, &v.Fixability, &v.Type, &v.Name, &v.FixDeadline, &v.Status, &docs, &location,
		&v.InspectorLocationVerified, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if v.Documents, err = unmarshalDocuments(docs); err != nil {
		return v, err
	}
	if location != "" {
		var loc domain.Location
		if err := json.Unmarshal([]byte(location), &loc); err != nil {
			return v, fmt.Errorf("decode location of %s: %w", v.ID, err)
		}
		v.Location = &loc
	}
	return v, nil
}

func (r Repo) InsertViolation(ctx context.Context, tx *sql.Tx, v domain.Violation) error {
	docs, err := documentsJSON(v.Documents)
	if err != nil {
		return err
	}
	var location any
	if v.Location != nil {
		l, err := marshalJSON(v.Location)
		if err != nil {
			return err
		}
		location = l
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO violations(id,journal_id,category,fixability,type,name,fix_deadline,status,documents_json,location_json,
inspector_location_verified,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.JournalID, v.Category, string(v.Fixability), string(v.Type), v.Name, v.FixDeadline, string(v.Status), docs, location,
		v.InspectorLocationVerified, v.CreatedAt, v.UpdatedAt)
	return err
}

// SaveViolation writes the mutable parts of a violation: status and documents.
func (r Repo) SaveViolation(ctx context.Context, tx *sql.Tx, v domain.Violation) error {
	docs, err := documentsJSON(v.Documents)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE violations SET status=?, documents_json=?, updated_at=? WHERE id=?`,
		string(v.Status), docs, v.UpdatedAt, v.ID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) GetViolationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Violation, error) {
	return scanViolation(r.q(tx).QueryRowContext(ctx, `SELECT `+violationColumns+` FROM violations WHERE id=?`, id))
}

// ListViolations returns the journal's violations newest first, each with its responses.
func (r Repo) ListViolations(ctx context.Context, journalID string) ([]domain.Violation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+violationColumns+` FROM violations WHERE journal_id=? ORDER BY created_at DESC, rowid DESC`, journalID)
	if err != nil {
		return nil, err
	}
	res := []domain.Violation{}
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, v)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Responses, err = r.ListResponses(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

const responseColumns = `id,violation_id,COALESCE(description,''),status,COALESCE(controller_comment,''),documents_json,created_at,updated_at`

func scanResponse(row rowScanner) (domain.ViolationResponse, error) {
	var (
		resp domain.ViolationResponse
		docs string
	)
	err := row.Scan(&resp.ID, &resp.ViolationID, &resp.Description, &resp.Status, &resp.ControllerComment, &docs, &resp.CreatedAt, &resp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return resp, ErrNotFound
	}
	if err != nil {
		return resp, err
	}
	resp.Documents, err = unmarshalDocuments(docs)
	return resp, err
}

func (r Repo) InsertResponse(ctx context.Context, tx *sql.Tx, resp domain.ViolationResponse) error {
	docs, err := documentsJSON(resp.Documents)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO violation_responses(id,violation_id,description,status,controller_comment,documents_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`, resp.ID, resp.ViolationID, nullable(resp.Description), string(resp.Status), nullable(resp.ControllerComment), docs,
		resp.CreatedAt, resp.UpdatedAt)
	return err
}

func (r Repo) SaveResponse(ctx context.Context, tx *sql.Tx, resp domain.ViolationResponse) error {
	docs, err := documentsJSON(resp.Documents)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE violation_responses SET status=?, controller_comment=?, documents_json=?, updated_at=? WHERE id=?`,
		string(resp.Status), nullable(resp.ControllerComment), docs, resp.UpdatedAt, resp.ID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) GetResponseTx(ctx context.Context, tx *sql.Tx, id string) (domain.ViolationResponse, error) {
	return scanResponse(r.q(tx).QueryRowContext(ctx, `SELECT `+responseColumns+` FROM violation_responses WHERE id=?`, id))
}

// ListResponses returns a violation's responses newest first.
func (r Repo) ListResponses(ctx context.Context, violationID string) ([]domain.ViolationResponse, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+responseColumns+` FROM violation_responses WHERE violation_id=? ORDER BY created_at DESC, rowid DESC`, violationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ViolationResponse{}
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, resp)
	}
	return res, rows.Err()
}
