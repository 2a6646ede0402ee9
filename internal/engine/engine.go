package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"oversight/internal/config"
	"oversight/internal/domain"
	"oversight/internal/events"
	"oversight/internal/files"
	"oversight/internal/repo"
)

// FileStore holds the bytes behind document metadata.
type FileStore interface {
	Save(ctx context.Context, owner, name string, data []byte) (files.Stored, error)
	Delete(ctx context.Context, path string) error
}

// UserDirectory resolves weak user references.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Files  FileStore
	Users  UserDirectory
	Logger *log.Logger
	Now    func() time.Time
	// DependencyErrors receives best-effort failures when set. Sends never block.
	DependencyErrors chan<- error

	cleanup *cleanupQueue
}

func New(db *sql.DB, cfg *config.Config, store FileStore) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:      db,
		Repo:    r,
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Files:   store,
		Users:   r,
		Logger:  log.NewWithOptions(io.Discard, log.Options{}),
		Now:     time.Now,
		cleanup: &cleanupQueue{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// tx runs fn inside a transaction and commits when fn succeeds.
func (e Engine) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// lookupUser checks that id names a user holding one of roles.
func (e Engine) lookupUser(ctx context.Context, id, field string, roles ...domain.Role) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
	}
	if e.Users == nil {
		return nil
	}
	u, err := e.Users.GetUser(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", field, id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	for _, r := range roles {
		if u.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s has role %s", domain.ErrInvalidInput, field, id, u.Role)
}

// DisplayName resolves a user id for presentation, falling back to the id.
func (e Engine) DisplayName(ctx context.Context, id string) string {
	if id == "" || e.Users == nil {
		return id
	}
	u, err := e.Users.GetUser(ctx, id)
	if err != nil || u.DisplayName == "" {
		return id
	}
	return u.DisplayName
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidState, fmt.Sprintf(format, args...))
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// wrapNotFound gives repo misses the name of what was being looked up.
func wrapNotFound(err error, kind, id string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return notFound(kind, id)
	}
	return err
}

const dateLayout = "2006-01-02"

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func validateRange(start, end string) error {
	var (
		st, en time.Time
		err    error
	)
	if start != "" {
		if st, err = parseDate(start); err != nil {
			return invalidInput("start date %q is not a date", start)
		}
	}
	if end != "" {
		if en, err = parseDate(end); err != nil {
			return invalidInput("end date %q is not a date", end)
		}
	}
	if start != "" && end != "" && en.Before(st) {
		return invalidInput("end date %s is before start date %s", end, start)
	}
	return nil
}
