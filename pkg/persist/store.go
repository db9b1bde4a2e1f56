// Package persist writes state records to durable storage as flat JSON.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrMalformed is returned when stored data cannot be decoded.
var ErrMalformed = errors.New("persist: malformed record")

// Store defines the interface for record persistence backends.
type Store interface {
	// Save persists the given data, replacing any previous contents.
	Save(data []byte) error

	// Load retrieves the stored data. Missing data returns nil, nil.
	Load() ([]byte, error)

	// Exists reports whether data has been stored.
	Exists() bool

	// Close releases any resources held by the store.
	Close() error
}

// JSONStore implements Store for a single JSON file.
type JSONStore struct {
	FilePath string
}

// NewJSONStore creates a new JSON file store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{FilePath: path}
}

// Save writes data to a temp file beside the target and renames it over the
// target, so readers of the file never see a partial write.
func (s *JSONStore) Save(data []byte) error {
	if s.FilePath == "" {
		return nil
	}

	dir := filepath.Dir(s.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.FilePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod file: %w", err)
	}
	if err := os.Rename(tmpName, s.FilePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Load reads data from the JSON file.
func (s *JSONStore) Load() ([]byte, error) {
	if s.FilePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // File doesn't exist yet, that's OK
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Exists reports whether the file is present.
func (s *JSONStore) Exists() bool {
	if s.FilePath == "" {
		return false
	}
	_, err := os.Stat(s.FilePath)
	return err == nil
}

// Close is a no-op for JSON files.
func (s *JSONStore) Close() error {
	return nil
}

// Ensure JSONStore implements Store
var _ Store = (*JSONStore)(nil)

// Record persists one value of type T through a Store.
type Record[T any] struct {
	store Store
}

// NewRecord wraps store.
func NewRecord[T any](store Store) *Record[T] {
	return &Record[T]{store: store}
}

// NewFileRecord is a convenience wrapper around NewRecord and NewJSONStore.
func NewFileRecord[T any](path string) *Record[T] {
	return NewRecord[T](NewJSONStore(path))
}

// Save encodes v as indented JSON and stores it.
func (r *Record[T]) Save(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: encode: %w", err)
	}
	if err := r.store.Save(data); err != nil {
		return fmt.Errorf("persist: save: %w", err)
	}
	return nil
}

// Load returns the stored value. found is false when nothing is stored.
// Undecodable data returns an error wrapping ErrMalformed.
func (r *Record[T]) Load() (v T, found bool, err error) {
	data, err := r.store.Load()
	if err != nil {
		return v, false, fmt.Errorf("persist: load: %w", err)
	}
	if data == nil {
		return v, false, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, true, nil
}

// Exists reports whether the underlying store holds data.
func (r *Record[T]) Exists() bool {
	return r.store.Exists()
}
