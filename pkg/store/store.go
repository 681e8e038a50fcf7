// Package store persists a conversation history to disk.
//
// Every Save rewrites the whole file: the history is written to a temporary
// file next to the target and renamed over it. There is no protection against
// concurrent writers, callers must not point two managers at the same path.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("history not found")

// CorruptError reports a history file that exists but cannot be used.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("history file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store loads and saves a whole history.
type Store interface {
	Load() (chat.History, error)
	Save(history chat.History) error
	Path() string
}

// NewFileStore picks the file format from the extension of path. YAML is
// used for .yaml and .yml, JSON for everything else.
func NewFileStore(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("history file path is required")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLFileStore(path), nil
	default:
		return NewJSONFileStore(path), nil
	}
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "could not read history file %s", path)
	}
	return b, nil
}

func writeFile(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create directory %s", dir)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		return errors.Wrapf(err, "could not write history file %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "could not replace history file %s", path)
	}
	return nil
}

func checkHistory(path string, history chat.History) error {
	if err := history.Validate(); err != nil {
		return &CorruptError{Path: path, Err: err}
	}
	return nil
}
