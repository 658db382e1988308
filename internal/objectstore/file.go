package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File is a Blob on the local filesystem. Saves go through a temp file and
// a rename so a crash never leaves a half-written document behind.
type File struct {
	path string
}

// NewFile returns a file-backed blob at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load reads the whole file.
func (f *File) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("File.Load: %s: %w", f.path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("File.Load: %w", err)
	}
	return data, nil
}

// Save replaces the file contents atomically.
func (f *File) Save(ctx context.Context, data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("File.Save: creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("File.Save: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("File.Save: writing: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("File.Save: syncing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("File.Save: closing: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("File.Save: renaming: %w", err)
	}
	return nil
}
