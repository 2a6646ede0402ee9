package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"oversight/internal/config"
	"oversight/internal/db"
	"oversight/internal/domain"
	"oversight/internal/engine"
	"oversight/internal/files"
	"oversight/internal/migrate"
)

// Workspace is an opened workspace: migrated database, loaded config and an
// engine wired to the workspace file store.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Logger *log.Logger
}

// Open prepares the workspace directory, migrates the database and builds the
// engine. A missing oversight.yml means defaults. levelOverride, when set,
// replaces the configured log level.
func Open(ctx context.Context, dir, levelOverride string) (*Workspace, error) {
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	level := cfg.Logging.Level
	if levelOverride != "" {
		level = levelOverride
	}
	logger := NewLogger(os.Stderr, level)
	e := engine.New(conn, cfg, files.Local{Dir: cfg.FilesDir(dir)})
	e.Logger = logger
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Engine: e, Logger: logger}, nil
}

// Close waits for background file cleanup and closes the database.
func (w *Workspace) Close() error {
	w.Engine.WaitCleanup()
	return w.DB.Close()
}

// NewLogger builds a structured logger at the named level. Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Prefix:          "oversight",
	})
}

// ResolveActor turns a user id into an actor. An explicit role is trusted as
// given (local operator use); otherwise the role comes from the directory.
func ResolveActor(ctx context.Context, users engine.UserDirectory, id, role string) (domain.Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Actor{}, fmt.Errorf("%w: actor id is required", domain.ErrInvalidInput)
	}
	if role != "" {
		r := domain.Role(role)
		if !r.Valid() {
			return domain.Actor{}, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
		}
		return domain.Actor{ID: id, Role: r}, nil
	}
	u, err := users.GetUser(ctx, id)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("resolve actor %s: %w", id, err)
	}
	return domain.Actor{ID: u.ID, Role: u.Role}, nil
}
