package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// Store persists the bundle record between runs.
type Store interface {
	Exists(ctx context.Context) (bool, error)
	Load(ctx context.Context) (domain.Bundle, error)
	Save(ctx context.Context, b domain.Bundle) error
	// Archive moves the record out of the way under a name derived from
	// key and returns its new location.
	Archive(ctx context.Context, key string) (string, error)
}

// FileStore keeps the bundle as a JSON array in a single file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the record's file name.
func (s *FileStore) Path() string {
	return s.path
}

// Exists reports whether a record is present.
func (s *FileStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("bundle: stat %s: %w", s.path, err)
}

// Load reads and validates the record.
func (s *FileStore) Load(_ context.Context) (domain.Bundle, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("bundle: load %s: %w", s.path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("bundle: load %s: %w", s.path, err)
	}
	var b domain.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bundle: decode %s: %w", s.path, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("bundle: %s is empty", s.path)
	}
	for i, e := range b {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("bundle: %s entry %d: %w", s.path, i, err)
		}
	}
	return b, nil
}

// Save replaces the record atomically.
func (s *FileStore) Save(_ context.Context, b domain.Bundle) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("bundle: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("bundle: save %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("bundle: save %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("bundle: save %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("bundle: save %s: %w", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("bundle: save %s: %w", s.path, err)
	}
	return nil
}

// Archive renames the record to bundle.<key>.json next to it.
func (s *FileStore) Archive(_ context.Context, key string) (string, error) {
	dst := filepath.Join(filepath.Dir(s.path), "bundle."+key+".json")
	if err := os.Rename(s.path, dst); err != nil {
		return "", fmt.Errorf("bundle: archive %s: %w", s.path, err)
	}
	return dst, nil
}
