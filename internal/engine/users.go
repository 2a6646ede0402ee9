package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"oversight/internal/domain"
	"oversight/internal/events"
	"oversight/internal/repo"
)

// UserCreateOptions are parameters for adding a directory entry.
type UserCreateOptions struct {
	ID           string
	Login        string
	DisplayName  string
	Role         domain.Role
	Organization string
}

// CreateUser adds a user to the directory.
func (e Engine) CreateUser(ctx context.Context, actorID string, opts UserCreateOptions) (domain.User, error) {
	login := strings.TrimSpace(opts.Login)
	if login == "" {
		return domain.User{}, invalidInput("login is required")
	}
	if !opts.Role.Valid() {
		return domain.User{}, invalidInput("unknown role %q", opts.Role)
	}
	u := domain.User{
		ID:           opts.ID,
		Login:        login,
		DisplayName:  strings.TrimSpace(opts.DisplayName),
		Role:         opts.Role,
		Organization: opts.Organization,
		CreatedAt:    e.stamp(),
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.DisplayName == "" {
		u.DisplayName = login
	}
	err := e.tx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.UserCreated, "", "user", u.ID, actorID, events.EventPayload{"role": u.Role, "login": u.Login})
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CreateAPIKey issues a key for a user. The plain key is returned once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", wrapNotFound(err, "user", userID)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "ovk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}
