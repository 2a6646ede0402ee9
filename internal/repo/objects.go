package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"oversight/internal/domain"
)

const objectColumns = `id,name,address,description,polygon_json,COALESCE(schedule_json,''),documents_json,status,created_by,
COALESCE(control_user_id,''),COALESCE(contractor_user_id,''),COALESCE(inspector_user_id,''),created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (domain.ConstructionObject, error) {
	var (
		o                             domain.ConstructionObject
		polygon, schedule, documents string
	)
	err := row.Scan(&o.ID, &o.Name, &o.Address, &o.Description, &polygon, &schedule, &documents, &o.Status, &o.CreatedBy,
		&o.ControlUserID, &o.ContractorUserID, &o.InspectorUserID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal([]byte(polygon), &o.Polygon); err != nil {
		return o, fmt.Errorf("decode polygon of %s: %w", o.ID, err)
	}
	if schedule != "" {
		var s domain.Schedule
		if err := json.Unmarshal([]byte(schedule), &s); err != nil {
			return o, fmt.Errorf("decode schedule of %s: %w", o.ID, err)
		}
		o.Schedule = &s
	}
	if o.Documents, err = unmarshalDocuments(documents); err != nil {
		return o, err
	}
	return o, nil
}

func objectArgs(o domain.ConstructionObject) ([]any, error) {
	polygon, err := marshalJSON(o.Polygon)
	if err != nil {
		return nil, err
	}
	var schedule any
	if o.Schedule != nil {
		s, err := marshalJSON(o.Schedule)
		if err != nil {
			return nil, err
		}
		schedule = s
	}
	docs, err := documentsJSON(o.Documents)
	if err != nil {
		return nil, err
	}
	return []any{o.Name, o.Address, o.Description, polygon, schedule, docs, string(o.Status), o.CreatedBy,
		nullable(o.ControlUserID), nullable(o.ContractorUserID), nullable(o.InspectorUserID), o.UpdatedAt}, nil
}

func (r Repo) InsertObject(ctx context.Context, tx *sql.Tx, o domain.ConstructionObject) error {
	args, err := objectArgs(o)
	if err != nil {
		return err
	}
	args = append([]any{o.ID}, args...)
	args = append(args, o.CreatedAt)
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO objects(id,name,address,description,polygon_json,schedule_json,documents_json,status,created_by,
control_user_id,contractor_user_id,inspector_user_id,updated_at,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	return err
}

// SaveObject overwrites every mutable column of an existing object.
func (r Repo) SaveObject(ctx context.Context, tx *sql.Tx, o domain.ConstructionObject) error {
	args, err := objectArgs(o)
	if err != nil {
		return err
	}
	args = append(args, o.ID)
	res, err := r.q(tx).ExecContext(ctx, `UPDATE objects SET name=?,address=?,description=?,polygon_json=?,schedule_json=?,documents_json=?,status=?,created_by=?,
control_user_id=?,contractor_user_id=?,inspector_user_id=?,updated_at=? WHERE id=?`, args...)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) GetObject(ctx context.Context, id string) (domain.ConstructionObject, error) {
	return r.GetObjectTx(ctx, nil, id)
}

func (r Repo) GetObjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.ConstructionObject, error) {
	return scanObject(r.q(tx).QueryRowContext(ctx, `SELECT `+objectColumns+` FROM objects WHERE id=?`, id))
}

// ObjectFilters narrows ListObjects. User filters are OR-ed together, and
// OrPlanned adds every object still in planned.
type ObjectFilters struct {
	ControlUserID    string
	ContractorUserID string
	InspectorUserID  string
	OrPlanned        bool
	Status           string
	Limit            int
}

func (r Repo) ListObjects(ctx context.Context, f ObjectFilters) ([]domain.ConstructionObject, error) {
	var (
		either  []string
		clauses []string
		args    []any
	)
	if f.ControlUserID != "" {
		either = append(either, "control_user_id=?")
		args = append(args, f.ControlUserID)
	}
	if f.ContractorUserID != "" {
		either = append(either, "contractor_user_id=?")
		args = append(args, f.ContractorUserID)
	}
	if f.InspectorUserID != "" {
		either = append(either, "inspector_user_id=?")
		args = append(args, f.InspectorUserID)
	}
	if f.OrPlanned {
		either = append(either, "status=?")
		args = append(args, string(domain.ObjectPlanned))
	}
	if len(either) > 0 {
		clauses = append(clauses, "("+strings.Join(either, " OR ")+")")
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + objectColumns + ` FROM objects`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ConstructionObject{}
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
