package draft

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileExt        = ".json"
	tempFilePrefix = "draft-tmp-"
)

// FileStore keeps each key as a JSON file inside a directory
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create draft directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the draft files
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	// Escaped keys hold no separators and map back to the key in Keys
	return filepath.Join(s.dir, url.PathEscape(key)+fileExt)
}

// Get reads the value for key
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read draft file: %w", err)
	}
	return data, nil
}

// Set writes the value for key atomically
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	return writeFileAtomic(s.path(key), value, 0600)
}

// Delete removes key; a missing key is not an error
func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove draft file: %w", err)
	}
	return nil
}

// Keys lists every stored key
func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list draft directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempFilePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Close is a no-op for FileStore
func (s *FileStore) Close() error {
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over filename so readers never observe a partial draft.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
