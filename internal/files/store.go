package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Stored is the metadata returned for a saved file.
type Stored struct {
	ID   string
	Path string
}

// Local keeps uploaded files under Dir as documents/<owner>/<uuid><ext>.
type Local struct {
	Dir string
}

var errInvalidPath = errors.New("path escapes the file store")

// Save writes data for owner and returns its id and store-relative path.
func (l Local) Save(ctx context.Context, owner, name string, data []byte) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	if strings.TrimSpace(owner) == "" || strings.ContainsAny(owner, `/\`) || owner == ".." {
		return Stored{}, fmt.Errorf("invalid owner %q", owner)
	}
	id := uuid.NewString()
	rel := path.Join("documents", owner, id+strings.ToLower(filepath.Ext(name)))
	full, err := l.resolve(rel)
	if err != nil {
		return Stored{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Stored{}, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return Stored{}, fmt.Errorf("write upload: %w", err)
	}
	return Stored{ID: id, Path: rel}, nil
}

// Delete removes the file at a store-relative path. A missing file is not an error.
func (l Local) Delete(ctx context.Context, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := l.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Open returns the absolute path of a stored file.
func (l Local) Open(rel string) (string, error) {
	return l.resolve(rel)
}

func (l Local) resolve(rel string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	if clean == "/" || strings.Contains(rel, "..") {
		return "", errInvalidPath
	}
	return filepath.Join(l.Dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
