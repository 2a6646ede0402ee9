package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"oversight/internal/domain"
)

const userColumns = `id,login,display_name,role,COALESCE(organization,''),created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Login, &u.DisplayName, &u.Role, &u.Organization, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Login) == "" {
		return errors.New("id and login required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,login,display_name,role,organization,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Login, u.DisplayName, string(u.Role), nullable(u.Organization), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByLogin(ctx context.Context, login string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE login=?`, login))
}

// ListUsers returns users ordered by login, optionally restricted to one role.
func (r Repo) ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, string(role))
	}
	query += ` ORDER BY login`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
