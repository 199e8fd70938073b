// Package file keeps the session token in a single JSON file on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mohammad-safakhou/bulkcart/internal/session/models"
)

type Store struct {
	path string
}

func NewFileTokenStore(path string) *Store {
	return &Store{path: path}
}

// Load returns ok=false when the file does not exist.
func (s *Store) Load(ctx context.Context) (models.Token, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Token{}, false, err
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.Token{}, false, nil
	}
	if err != nil {
		return models.Token{}, false, err
	}
	var tok models.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return models.Token{}, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return tok, true, nil
}

func (s *Store) Save(ctx context.Context, tok models.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(s.path, b, 0o600)
}

func (s *Store) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// writeFile writes through a temp file in the target directory and renames it
// over path, so a crash never leaves a truncated token behind.
func writeFile(path string, b []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
